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

import "strings"

// contactConverter renders a Contact as a vCard.
type contactConverter struct{}

func (contactConverter) ext() string { return ".vcf" }

func (contactConverter) convert(remote *Item, _ []inlineAttachment) ([]byte, error) {
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"PRODID:-//gwpump//EN",
		rawProp("UID", itemUID(remote)),
		rawProp("REV", icalDateTime(stampTime(remote))),
		rawProp("X-MS-ID", msID(remote.ItemID)),
	}

	fn := remote.Subject
	if cn := remote.CompleteName; cn != nil {
		lines = append(lines, rawProp("N", strings.Join([]string{
			propEscape(cn.LastName),
			propEscape(cn.FirstName),
			propEscape(cn.MiddleName),
			propEscape(cn.Title),
			propEscape(cn.Suffix),
		}, ";")))

		if fn == "" {
			fn = strings.TrimSpace(cn.FirstName + " " + cn.LastName)
		}
		if cn.Nickname != "" {
			lines = append(lines, formatProp("NICKNAME", cn.Nickname))
		}
	}
	if fn != "" {
		lines = append(lines, formatProp("FN", fn))
	}

	if remote.CompanyName != "" {
		lines = append(lines, formatProp("ORG", remote.CompanyName))
	}
	if remote.JobTitle != "" {
		lines = append(lines, formatProp("TITLE", remote.JobTitle))
	}
	if bday, ok := parseTime(remote.Birthday); ok {
		lines = append(lines, rawProp("BDAY", icalDate(bday)))
	}

	for _, entry := range remote.EmailAddresses {
		addr := strings.TrimPrefix(entry.Value, "smtp:")
		addr = strings.TrimPrefix(addr, "SMTP:")
		if addr == "" {
			continue
		}
		lines = append(lines, rawProp("EMAIL", propEscape(addr), "TYPE", "INTERNET"))
	}

	for _, entry := range remote.PhoneNumbers {
		if entry.Value == "" {
			continue
		}
		if t := phoneType(entry.Key); t != "" {
			lines = append(lines, rawProp("TEL", propEscape(entry.Value), "TYPE", t))
		} else {
			lines = append(lines, rawProp("TEL", propEscape(entry.Value)))
		}
	}

	for _, entry := range remote.PhysicalAddress {
		lines = append(lines, rawProp("ADR", strings.Join([]string{
			"", "",
			propEscape(entry.Street),
			propEscape(entry.City),
			propEscape(entry.State),
			propEscape(entry.PostalCode),
			propEscape(entry.CountryOrRegion),
		}, ";"), "TYPE", addressType(entry.Key)))
	}

	if body := remote.Body.Content; body != "" && remote.Body.BodyType == "Text" {
		lines = append(lines, formatProp("NOTE", body))
	}
	if len(remote.Categories) > 0 {
		lines = append(lines, rawProp("CATEGORIES", joinCategories(remote.Categories)))
	}

	lines = append(lines, "END:VCARD")
	return joinLines(lines), nil
}

func phoneType(key string) string {
	switch key {
	case "HomePhone", "HomePhone2":
		return "HOME"
	case "BusinessPhone", "BusinessPhone2":
		return "WORK"
	case "MobilePhone":
		return "CELL"
	case "BusinessFax", "HomeFax":
		return "FAX"
	case "Pager":
		return "PAGER"
	}
	return ""
}

func addressType(key string) string {
	switch key {
	case "Home":
		return "HOME"
	case "Business":
		return "WORK"
	}
	return "OTHER"
}
