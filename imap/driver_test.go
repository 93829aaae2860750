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

package imap_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/imap"
	"github.com/gwpump/gwpump/imap/client"
	"github.com/gwpump/gwpump/internal"
	"github.com/gwpump/gwpump/migrate"
)

func buildDriver(t *testing.T, addr string) *imap.Driver {
	acct, err := account.Parse("imap://username:password@" + addr)
	assert.NoError(t, err)

	d, err := imap.NewDriver(acct, &client.Factory{}, nil, false)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func seedMail(t *testing.T, user backend.User, mailbox string, uid uint32, msgid string) {
	hdr := message.Header{}
	hdr.Add("From", "sender@example.com")
	hdr.Add("Subject", fmt.Sprintf("msg %d", uid))
	hdr.Add("Date", "Mon, 02 Jan 2006 15:04:05 +0000")
	hdr.Add("Content-Type", "text/plain")
	hdr.Add("Message-ID", fmt.Sprintf("<%s>", msgid))

	msg, err := message.New(hdr, strings.NewReader(fmt.Sprintf("hello %d", uid)))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	bb := new(bytes.Buffer)
	err = msg.WriteTo(bb)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	date := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Add(time.Duration(uid) * time.Minute)
	internal.SeedMessage(t, user, mailbox, uid, date, []string{goimap.SeenFlag}, bb.String())
}

func TestGetFolders(t *testing.T) {
	_, addr, _ := internal.BuildTestIMAPServer(t)
	d := buildDriver(t, addr)

	folders, err := d.GetFolders(context.Background(), nil)
	assert.NoError(t, err)
	if assert.Len(t, folders, 1) {
		assert.Equal(t, "INBOX", folders[0].Fullname)
		assert.Equal(t, migrate.TypeMail, folders[0].Type)
	}

	// Mail drivers contribute nothing to a calendar-only migration.
	folders, err = d.GetFolders(context.Background(), []migrate.FolderType{migrate.TypeEvent})
	assert.NoError(t, err)
	assert.Empty(t, folders)
}

func TestCreateFolder(t *testing.T) {
	_, addr, _ := internal.BuildTestIMAPServer(t)
	d := buildDriver(t, addr)

	ctx := context.Background()

	assert.NoError(t, d.CreateFolder(ctx, &migrate.Folder{Fullname: "INBOX", Type: migrate.TypeMail}))
	assert.NoError(t, d.CreateFolder(ctx, &migrate.Folder{Fullname: "Archive", Type: migrate.TypeMail}))
	// A second create of the same mailbox is not an error.
	assert.NoError(t, d.CreateFolder(ctx, &migrate.Folder{Fullname: "Archive", Type: migrate.TypeMail}))

	err := d.CreateFolder(ctx, &migrate.Folder{Fullname: "Calendar", Type: migrate.TypeEvent})
	var uerr *migrate.UnsupportedTypeError
	assert.ErrorAs(t, err, &uerr)
}

func collectItems(t *testing.T, src *imap.Driver, folder *migrate.Folder, dst migrate.Importer) []migrate.Item {
	var items []migrate.Item
	err := src.FetchItemList(context.Background(), folder, func(set *migrate.ItemSet) error {
		items = append(items, set.Items...)
		return nil
	}, dst)
	assert.NoError(t, err)
	return items
}

func TestMigrateMailbox(t *testing.T) {
	_, srcAddr, srcUser := internal.BuildTestIMAPServer(t)
	_, dstAddr, _ := internal.BuildTestIMAPServer(t)

	seedMail(t, srcUser, "INBOX", 1, "one@example.com")
	seedMail(t, srcUser, "INBOX", 2, "two@example.com")

	src := buildDriver(t, srcAddr)
	dst := buildDriver(t, dstAddr)

	ctx := context.Background()
	folder := &migrate.Folder{
		Fullname: "INBOX",
		Type:     migrate.TypeMail,
		Total:    -1,
		Location: t.TempDir(),
	}

	assert.NoError(t, dst.CreateFolder(ctx, folder))

	items := collectItems(t, src, folder, dst)
	if !assert.Len(t, items, 2) {
		t.FailNow()
	}

	for i := range items {
		assert.NoError(t, src.FetchItem(ctx, &items[i]))
		assert.NotEmpty(t, items[i].Filename)
		assert.NoError(t, dst.CreateItem(ctx, &items[i]))
	}

	existing, err := dst.GetItems(ctx, folder)
	assert.NoError(t, err)
	assert.Len(t, existing, 2)

	// Both sides index by the same Message-Id keys.
	sourceIndex, err := src.GetItems(ctx, folder)
	assert.NoError(t, err)
	for id := range sourceIndex {
		assert.Contains(t, existing, id)
	}

	// Everything was transferred; a second list pass finds nothing to do.
	items = collectItems(t, src, folder, dst)
	assert.Empty(t, items)
}

func TestFetchItemListBatches(t *testing.T) {
	_, srcAddr, srcUser := internal.BuildTestIMAPServer(t)
	_, dstAddr, _ := internal.BuildTestIMAPServer(t)

	for uid := uint32(1); uid <= 250; uid++ {
		seedMail(t, srcUser, "INBOX", uid, fmt.Sprintf("m%d@example.com", uid))
	}

	src := buildDriver(t, srcAddr)
	dst := buildDriver(t, dstAddr)

	folder := &migrate.Folder{Fullname: "INBOX", Type: migrate.TypeMail, Total: -1}
	assert.NoError(t, dst.CreateFolder(context.Background(), folder))

	var sizes []int
	err := src.FetchItemList(context.Background(), folder, func(set *migrate.ItemSet) error {
		sizes = append(sizes, len(set.Items))
		return nil
	}, dst)
	assert.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, sizes)
}

func TestGetItemsEmptyMailbox(t *testing.T) {
	_, addr, _ := internal.BuildTestIMAPServer(t)
	d := buildDriver(t, addr)

	existing, err := d.GetItems(context.Background(), &migrate.Folder{Fullname: "INBOX", Type: migrate.TypeMail})
	assert.NoError(t, err)
	assert.Empty(t, existing)
}

func TestAuthenticationFailure(t *testing.T) {
	_, addr, _ := internal.BuildTestIMAPServer(t)

	acct, err := account.Parse("imap://username:wrong@" + addr)
	assert.NoError(t, err)

	_, err = imap.NewDriver(acct, &client.Factory{}, nil, false)
	assert.Error(t, err)

	var aerr *migrate.AuthenticationError
	assert.ErrorAs(t, err, &aerr)
}
