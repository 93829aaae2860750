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

package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestFilterFlags(t *testing.T) {
	flags := filterFlags([]string{
		imap.RecentFlag,
		imap.SeenFlag,
		"$Junk",
		imap.FlaggedFlag,
	})

	assert.Equal(t, []string{imap.FlaggedFlag, imap.SeenFlag}, flags)
}

func TestFlagsEqual(t *testing.T) {
	assert.True(t, flagsEqual(nil, nil))
	assert.True(t, flagsEqual([]string{imap.SeenFlag}, []string{imap.SeenFlag}))
	assert.False(t, flagsEqual([]string{imap.SeenFlag}, nil))
	assert.False(t, flagsEqual([]string{imap.SeenFlag}, []string{imap.DraftFlag}))
}

func TestDiffFlags(t *testing.T) {
	add := diffFlags([]string{imap.SeenFlag, imap.FlaggedFlag}, []string{imap.SeenFlag})
	assert.Equal(t, []string{imap.FlaggedFlag}, add)

	remove := diffFlags([]string{imap.SeenFlag}, []string{imap.SeenFlag})
	assert.Empty(t, remove)
}

func TestMessageIDFallback(t *testing.T) {
	d := &Driver{}

	withID := &imap.Message{Envelope: &imap.Envelope{MessageId: "<x@example.com>"}}
	assert.Equal(t, "<x@example.com>", d.messageID(withID, "INBOX"))

	date := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	without := &imap.Message{
		Envelope: &imap.Envelope{
			From: []*imap.Address{{MailboxName: "sender", HostName: "example.com"}},
			Date: date,
		},
	}

	a := d.messageID(without, "INBOX")
	b := d.messageID(without, "INBOX")
	c := d.messageID(without, "Archive")

	// The substitute id is deterministic but folder-scoped.
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
