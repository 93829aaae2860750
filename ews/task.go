/*
 * gwpump - Copyright (C) 2026 gwpump contributors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package ews

import "fmt"

// taskConverter renders a Task as an iCalendar VTODO.
type taskConverter struct{}

func (taskConverter) ext() string { return ".ics" }

func (taskConverter) convert(remote *Item, attachments []inlineAttachment) ([]byte, error) {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//gwpump//EN",
		"BEGIN:VTODO",
		rawProp("UID", itemUID(remote)),
		rawProp("DTSTAMP", icalDateTime(stampTime(remote))),
		rawProp("X-MS-ID", msID(remote.ItemID)),
	}

	if remote.Subject != "" {
		lines = append(lines, formatProp("SUMMARY", remote.Subject))
	}
	if body := remote.Body.Content; body != "" && remote.Body.BodyType == "Text" {
		lines = append(lines, formatProp("DESCRIPTION", body))
	}

	if start, ok := parseTime(remote.StartDate); ok {
		lines = append(lines, rawProp("DTSTART", icalDateTime(start)))
	}
	if due, ok := parseTime(remote.DueDate); ok {
		lines = append(lines, rawProp("DUE", icalDateTime(due)))
	}
	if done, ok := parseTime(remote.CompleteDate); ok {
		lines = append(lines, rawProp("COMPLETED", icalDateTime(done)))
	}

	if remote.PercentComplete > 0 {
		lines = append(lines, rawProp("PERCENT-COMPLETE", fmt.Sprintf("%d", int(remote.PercentComplete))))
	}
	if status := taskStatus(remote.Status); status != "" {
		lines = append(lines, rawProp("STATUS", status))
	}
	if prio := importancePriority(remote.Importance); prio != "" {
		lines = append(lines, rawProp("PRIORITY", prio))
	}
	if class := sensitivityClass(remote.Sensitivity); class != "" {
		lines = append(lines, rawProp("CLASS", class))
	}
	if len(remote.Categories) > 0 {
		lines = append(lines, rawProp("CATEGORIES", joinCategories(remote.Categories)))
	}

	for _, a := range attachments {
		lines = append(lines, attachProp(a))
	}

	lines = append(lines, "END:VTODO", "END:VCALENDAR")
	return joinLines(lines), nil
}

func taskStatus(status string) string {
	switch status {
	case "Completed":
		return "COMPLETED"
	case "InProgress":
		return "IN-PROCESS"
	case "NotStarted":
		return "NEEDS-ACTION"
	case "Deferred", "WaitingOnOthers":
		return "NEEDS-ACTION"
	}
	return ""
}

func importancePriority(importance string) string {
	switch importance {
	case "High":
		return "1"
	case "Normal":
		return "5"
	case "Low":
		return "9"
	}
	return ""
}
