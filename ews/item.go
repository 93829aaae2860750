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
	"strings"
	"time"
)

// inlineAttachment is fetched attachment content, base64 as EWS returns
// it.
type inlineAttachment struct {
	Name        string
	ContentType string
	Content     string
}

// converter turns one typed EWS item into an interchange payload.
type converter interface {
	ext() string
	convert(remote *Item, attachments []inlineAttachment) ([]byte, error)
}

func converterFor(remote *Item) converter {
	switch remote.XMLName.Local {
	case "CalendarItem":
		return appointmentConverter{}
	case "Contact":
		return contactConverter{}
	case "Task":
		return taskConverter{}
	case "DistributionList":
		return distListConverter{}
	}
	return nil
}

// msID preserves the Exchange identity on the converted object so the
// original item can always be traced back.
func msID(id ItemID) string {
	return id.ID + "!" + id.ChangeKey
}

// propEscape escapes a text property value per RFC 5545 / RFC 6350.
func propEscape(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}

// formatProp renders one content line, escaped and folded at 75 octets.
func formatProp(name, value string, params ...string) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i+1 < len(params); i += 2 {
		b.WriteString(";")
		b.WriteString(params[i])
		b.WriteString("=")
		b.WriteString(params[i+1])
	}
	b.WriteString(":")
	b.WriteString(propEscape(value))
	return foldLine(b.String())
}

// rawProp renders a content line without escaping, for values that are
// already in their final form (dates, inline base64).
func rawProp(name, value string, params ...string) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i+1 < len(params); i += 2 {
		b.WriteString(";")
		b.WriteString(params[i])
		b.WriteString("=")
		b.WriteString(params[i+1])
	}
	b.WriteString(":")
	b.WriteString(value)
	return foldLine(b.String())
}

// foldLine folds a content line at 75 octets with CRLF + space
// continuations.
func foldLine(line string) string {
	const limit = 75

	if len(line) <= limit {
		return line
	}

	var b strings.Builder
	// Continuation lines lose one octet to the leading space.
	max := limit
	for len(line) > max {
		cut := max
		// Do not split in the middle of a UTF-8 sequence.
		for cut > 1 && line[cut]&0xc0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		max = limit - 1
	}
	b.WriteString(line)
	return b.String()
}

// parseTime accepts the RFC 3339 timestamps EWS emits.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// icalDateTime renders a timestamp as a UTC DATE-TIME value.
func icalDateTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// icalDate renders a timestamp as a DATE value, for all-day events and
// birthdays.
func icalDate(t time.Time) string {
	return t.UTC().Format("20060102")
}

// joinLines assembles content lines into a CRLF-terminated payload.
func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}
