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
	"github.com/google/uuid"
)

// distListConverter renders a DistributionList as a vCard 4.0 group with
// urn:uuid members, which is how CardDAV servers expect contact groups.
type distListConverter struct{}

func (distListConverter) ext() string { return ".vcf" }

func (distListConverter) convert(remote *Item, _ []inlineAttachment) ([]byte, error) {
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:4.0",
		"PRODID:-//gwpump//EN",
		rawProp("UID", itemUID(remote)),
		rawProp("REV", icalDateTime(stampTime(remote))),
		rawProp("X-MS-ID", msID(remote.ItemID)),
		"KIND:group",
	}

	if remote.Subject != "" {
		lines = append(lines, formatProp("FN", remote.Subject))
	}

	for _, m := range remote.Members {
		if m.Mailbox.EmailAddress == "" {
			continue
		}
		// Members are referenced by a name-based uuid derived from their
		// address so the reference is stable across runs.
		uid := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+m.Mailbox.EmailAddress)).String()
		params := []string{}
		if m.Mailbox.Name != "" {
			params = append(params, "X-CN", quoteParam(m.Mailbox.Name))
		}
		lines = append(lines, rawProp("MEMBER", "urn:uuid:"+uid, params...))
	}

	lines = append(lines, "END:VCARD")
	return joinLines(lines), nil
}
