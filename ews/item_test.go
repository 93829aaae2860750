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
	"encoding/xml"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPropEscape(t *testing.T) {
	assert.Equal(t, "a\\;b\\,c\\\\d", propEscape("a;b,c\\d"))
	assert.Equal(t, "line1\\nline2", propEscape("line1\nline2"))
	assert.Equal(t, "line1\\nline2", propEscape("line1\r\nline2"))
}

func TestFoldLine(t *testing.T) {
	short := "SUMMARY:short"
	assert.Equal(t, short, foldLine(short))

	long := "DESCRIPTION:" + strings.Repeat("x", 200)
	folded := foldLine(long)

	for i, line := range strings.Split(folded, "\r\n") {
		assert.LessOrEqual(t, len(line), 75)
		if i > 0 {
			assert.True(t, strings.HasPrefix(line, " "))
		}
	}

	// Unfolding restores the original line.
	assert.Equal(t, long, strings.ReplaceAll(folded, "\r\n ", ""))
}

func TestFoldLineUTF8(t *testing.T) {
	long := "SUMMARY:" + strings.Repeat("é", 100)
	folded := foldLine(long)

	// No continuation may start inside a UTF-8 sequence.
	for _, line := range strings.Split(folded, "\r\n") {
		s := strings.TrimPrefix(line, " ")
		assert.True(t, len(s) == 0 || s[0]&0xc0 != 0x80)
	}
	assert.Equal(t, long, strings.ReplaceAll(folded, "\r\n ", ""))
}

func TestTaskConverter(t *testing.T) {
	item := &Item{
		XMLName:          xml.Name{Local: "Task"},
		ItemID:           ItemID{ID: "t1", ChangeKey: "ck"},
		Subject:          "Water plants",
		LastModifiedTime: "2026-01-15T08:00:00Z",
		DueDate:          "2026-01-20T00:00:00Z",
		PercentComplete:  40,
		Status:           "InProgress",
		Importance:       "High",
		Sensitivity:      "Confidential",
	}

	payload, err := taskConverter{}.convert(item, nil)
	assert.NoError(t, err)
	s := string(payload)

	assert.Contains(t, s, "BEGIN:VTODO")
	assert.Contains(t, s, "SUMMARY:Water plants")
	assert.Contains(t, s, "DUE:20260120T000000Z")
	assert.Contains(t, s, "PERCENT-COMPLETE:40")
	assert.Contains(t, s, "STATUS:IN-PROCESS")
	assert.Contains(t, s, "PRIORITY:1")
	assert.Contains(t, s, "CLASS:CONFIDENTIAL")
	assert.Contains(t, s, "END:VTODO")
}

func TestRecurrenceRule(t *testing.T) {
	weekly := &Recurrence{
		Weekly:   &WeeklyPattern{Interval: 2, DaysOfWeek: "Monday Wednesday"},
		Numbered: &NumberedRange{NumberOfOccurrences: 10},
	}
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10", recurrenceRule(weekly))

	daily := &Recurrence{
		Daily:   &DailyPattern{Interval: 1},
		EndDate: &EndDateRange{EndDate: "2026-09-01Z"},
	}
	assert.Equal(t, "FREQ=DAILY;UNTIL=20260901", recurrenceRule(daily))

	yearly := &Recurrence{
		Yearly: &YearlyPattern{DayOfMonth: 24, Month: "December"},
		NoEnd:  &struct{}{},
	}
	assert.Equal(t, "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=24", recurrenceRule(yearly))

	assert.Equal(t, "", recurrenceRule(&Recurrence{}))
}

func TestAppointmentRecurrence(t *testing.T) {
	item := &Item{
		XMLName:          xml.Name{Local: "CalendarItem"},
		ItemID:           ItemID{ID: "a1", ChangeKey: "ck"},
		Subject:          "Standup",
		LastModifiedTime: "2026-01-15T08:00:00Z",
		Start:            "2026-01-19T09:00:00Z",
		End:              "2026-01-19T09:15:00Z",
		Recurrence: &Recurrence{
			Daily: &DailyPattern{Interval: 1},
			NoEnd: &struct{}{},
		},
	}

	payload, err := appointmentConverter{}.convert(item, nil)
	assert.NoError(t, err)
	assert.Contains(t, string(payload), "RRULE:FREQ=DAILY")
}

func TestContactConverter(t *testing.T) {
	item := &Item{
		XMLName:          xml.Name{Local: "Contact"},
		ItemID:           ItemID{ID: "c1", ChangeKey: "ck"},
		Subject:          "Jane Doe",
		LastModifiedTime: "2026-01-15T08:00:00Z",
		CompleteName: &CompleteName{
			FirstName: "Jane",
			LastName:  "Doe",
		},
		CompanyName: "Example Corp",
		JobTitle:    "Engineer",
		EmailAddresses: []DictionaryItem{
			{Key: "EmailAddress1", Value: "smtp:jane@example.com"},
		},
		PhoneNumbers: []DictionaryItem{
			{Key: "MobilePhone", Value: "+1 555 0100"},
		},
	}

	payload, err := contactConverter{}.convert(item, nil)
	assert.NoError(t, err)
	s := string(payload)

	assert.Contains(t, s, "BEGIN:VCARD")
	assert.Contains(t, s, "N:Doe;Jane;;;")
	assert.Contains(t, s, "FN:Jane Doe")
	assert.Contains(t, s, "ORG:Example Corp")
	assert.Contains(t, s, "TITLE:Engineer")
	assert.Contains(t, s, "EMAIL;TYPE=INTERNET:jane@example.com")
	assert.Contains(t, s, "TEL;TYPE=CELL:+1 555 0100")
	assert.Contains(t, s, "REV:20260115T080000Z")
	assert.Contains(t, s, "END:VCARD")
}

func TestDistListConverter(t *testing.T) {
	item := &Item{
		XMLName:          xml.Name{Local: "DistributionList"},
		ItemID:           ItemID{ID: "d1", ChangeKey: "ck"},
		Subject:          "Team",
		LastModifiedTime: "2026-01-15T08:00:00Z",
		Members: []Member{
			{Mailbox: Mailbox{Name: "Jane Doe", EmailAddress: "jane@example.com"}},
			{Mailbox: Mailbox{EmailAddress: "bob@example.com"}},
			{Mailbox: Mailbox{Name: "No Address"}},
		},
	}

	payload, err := distListConverter{}.convert(item, nil)
	assert.NoError(t, err)
	s := string(payload)

	assert.Contains(t, s, "KIND:group")
	assert.Contains(t, s, "FN:Team")
	assert.Equal(t, 2, strings.Count(s, "MEMBER"))

	// Member references are name-based uuids over the mailto form.
	jane := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:jane@example.com")).String()
	assert.Contains(t, s, "MEMBER;X-CN=\"Jane Doe\":urn:uuid:"+jane)

	// The member reference only depends on the address.
	again, err := distListConverter{}.convert(item, nil)
	assert.NoError(t, err)
	assert.Equal(t, payload, again)
}

func TestItemUIDFallback(t *testing.T) {
	withUID := &Item{UID: "explicit", ItemID: ItemID{ID: "abc"}}
	assert.Equal(t, "explicit", itemUID(withUID))

	without := &Item{ItemID: ItemID{ID: "abc"}}
	a := itemUID(without)
	b := itemUID(without)
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestConverterSelection(t *testing.T) {
	assert.NotNil(t, converterFor(&Item{XMLName: xml.Name{Local: "CalendarItem"}}))
	assert.NotNil(t, converterFor(&Item{XMLName: xml.Name{Local: "Contact"}}))
	assert.NotNil(t, converterFor(&Item{XMLName: xml.Name{Local: "Task"}}))
	assert.NotNil(t, converterFor(&Item{XMLName: xml.Name{Local: "DistributionList"}}))
	assert.Nil(t, converterFor(&Item{XMLName: xml.Name{Local: "Message"}}))
}
