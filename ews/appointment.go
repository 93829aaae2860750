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

import (
	"fmt"
	"strings"
	"time"
)

// appointmentConverter renders a CalendarItem as an iCalendar VEVENT.
type appointmentConverter struct{}

func (appointmentConverter) ext() string { return ".ics" }

func (appointmentConverter) convert(remote *Item, attachments []inlineAttachment) ([]byte, error) {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//gwpump//EN",
		"BEGIN:VEVENT",
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
	if remote.Location != "" {
		lines = append(lines, formatProp("LOCATION", remote.Location))
	}

	if start, ok := parseTime(remote.Start); ok {
		if remote.IsAllDayEvent {
			lines = append(lines, rawProp("DTSTART", icalDate(start), "VALUE", "DATE"))
		} else {
			lines = append(lines, rawProp("DTSTART", icalDateTime(start)))
		}
	}
	if end, ok := parseTime(remote.End); ok {
		if remote.IsAllDayEvent {
			lines = append(lines, rawProp("DTEND", icalDate(end), "VALUE", "DATE"))
		} else {
			lines = append(lines, rawProp("DTEND", icalDateTime(end)))
		}
	}

	if remote.Recurrence != nil {
		if rule := recurrenceRule(remote.Recurrence); rule != "" {
			lines = append(lines, rawProp("RRULE", rule))
		}
	}

	if remote.LegacyFreeBusy == "Free" {
		lines = append(lines, "TRANSP:TRANSPARENT")
	}
	if class := sensitivityClass(remote.Sensitivity); class != "" {
		lines = append(lines, rawProp("CLASS", class))
	}
	if len(remote.Categories) > 0 {
		lines = append(lines, rawProp("CATEGORIES", joinCategories(remote.Categories)))
	}

	if remote.Organizer != nil && remote.Organizer.Mailbox.EmailAddress != "" {
		lines = append(lines, rawProp(
			"ORGANIZER", "mailto:"+remote.Organizer.Mailbox.EmailAddress,
			"CN", quoteParam(remote.Organizer.Mailbox.Name),
		))
	}

	for _, att := range remote.RequiredAttendees {
		lines = append(lines, attendeeProp(att, "REQ-PARTICIPANT"))
	}
	for _, att := range remote.OptionalAttendees {
		lines = append(lines, attendeeProp(att, "OPT-PARTICIPANT"))
	}

	for _, a := range attachments {
		lines = append(lines, attachProp(a))
	}

	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return joinLines(lines), nil
}

// stampTime picks the best DTSTAMP source the item offers.
func stampTime(remote *Item) time.Time {
	if t, ok := parseTime(remote.LastModifiedTime); ok {
		return t
	}
	if t, ok := parseTime(remote.DateTimeCreated); ok {
		return t
	}
	return time.Unix(0, 0)
}

func sensitivityClass(sensitivity string) string {
	switch sensitivity {
	case "Private", "Personal":
		return "PRIVATE"
	case "Confidential":
		return "CONFIDENTIAL"
	case "Normal":
		return "PUBLIC"
	}
	return ""
}

func attendeeProp(att Attendee, role string) string {
	params := []string{"ROLE", role}
	if att.Mailbox.Name != "" {
		params = append(params, "CN", quoteParam(att.Mailbox.Name))
	}
	if partstat := responsePartStat(att.ResponseType); partstat != "" {
		params = append(params, "PARTSTAT", partstat)
	}
	return rawProp("ATTENDEE", "mailto:"+att.Mailbox.EmailAddress, params...)
}

func responsePartStat(response string) string {
	switch response {
	case "Accept":
		return "ACCEPTED"
	case "Decline":
		return "DECLINED"
	case "Tentative":
		return "TENTATIVE"
	case "NoResponseReceived", "Unknown":
		return "NEEDS-ACTION"
	}
	return ""
}

func attachProp(a inlineAttachment) string {
	params := []string{"ENCODING", "BASE64", "VALUE", "BINARY"}
	if a.ContentType != "" {
		params = append(params, "FMTTYPE", a.ContentType)
	}
	if a.Name != "" {
		params = append(params, "X-LABEL", quoteParam(a.Name))
	}
	return rawProp("ATTACH", a.Content, params...)
}

// recurrenceRule maps an Exchange recurrence pattern onto an RRULE.
// Patterns with no absolute-rule equivalent yield "", and the occurrence
// is exported as a one-off.
func recurrenceRule(rec *Recurrence) string {
	var parts []string

	switch {
	case rec.Daily != nil:
		parts = append(parts, "FREQ=DAILY")
		if rec.Daily.Interval > 1 {
			parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Daily.Interval))
		}
	case rec.Weekly != nil:
		parts = append(parts, "FREQ=WEEKLY")
		if rec.Weekly.Interval > 1 {
			parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Weekly.Interval))
		}
		if days := byDay(rec.Weekly.DaysOfWeek); days != "" {
			parts = append(parts, "BYDAY="+days)
		}
	case rec.Monthly != nil:
		parts = append(parts, "FREQ=MONTHLY")
		if rec.Monthly.Interval > 1 {
			parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Monthly.Interval))
		}
		if rec.Monthly.DayOfMonth > 0 {
			parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", rec.Monthly.DayOfMonth))
		}
	case rec.Yearly != nil:
		parts = append(parts, "FREQ=YEARLY")
		if m := monthNumber(rec.Yearly.Month); m > 0 {
			parts = append(parts, fmt.Sprintf("BYMONTH=%d", m))
		}
		if rec.Yearly.DayOfMonth > 0 {
			parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", rec.Yearly.DayOfMonth))
		}
	default:
		return ""
	}

	switch {
	case rec.Numbered != nil && rec.Numbered.NumberOfOccurrences > 0:
		parts = append(parts, fmt.Sprintf("COUNT=%d", rec.Numbered.NumberOfOccurrences))
	case rec.EndDate != nil:
		if until, ok := parseRecurrenceDate(rec.EndDate.EndDate); ok {
			parts = append(parts, "UNTIL="+icalDate(until))
		}
	}

	return strings.Join(parts, ";")
}

// parseRecurrenceDate accepts the date forms Exchange uses for recurrence
// ranges, including the "Z"-suffixed bare date.
func parseRecurrenceDate(s string) (time.Time, bool) {
	if t, ok := parseTime(s); ok {
		return t, true
	}
	for _, layout := range []string{"2006-01-02Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var weekdayAbbrev = map[string]string{
	"Monday":    "MO",
	"Tuesday":   "TU",
	"Wednesday": "WE",
	"Thursday":  "TH",
	"Friday":    "FR",
	"Saturday":  "SA",
	"Sunday":    "SU",
}

// byDay turns the space-separated Exchange day list into a BYDAY value.
func byDay(daysOfWeek string) string {
	var out []string
	for _, day := range strings.Fields(daysOfWeek) {
		if abbrev, ok := weekdayAbbrev[day]; ok {
			out = append(out, abbrev)
		}
	}
	return strings.Join(out, ",")
}

func monthNumber(month string) int {
	for m := time.January; m <= time.December; m++ {
		if m.String() == month {
			return int(m)
		}
	}
	return 0
}

// joinCategories escapes each category and joins them on the unescaped
// list separator.
func joinCategories(cats []string) string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = propEscape(c)
	}
	return strings.Join(out, ",")
}

// quoteParam quotes a parameter value when it contains characters that
// would otherwise terminate it.
func quoteParam(s string) string {
	if s == "" {
		return s
	}
	for _, r := range s {
		if r == ':' || r == ';' || r == ',' || r == ' ' {
			return `"` + s + `"`
		}
	}
	return s
}
