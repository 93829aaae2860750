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
	"bytes"
	"context"
	"crypto/md5"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	log "github.com/sirupsen/logrus"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/migrate"
)

// chunkSize bounds the number of items handed to the engine per batch.
const chunkSize = 100

// Flags that can be re-applied on APPEND. Session-local flags like
// \Recent cannot and are dropped.
var appendableFlags = map[string]bool{
	imap.SeenFlag:     true,
	imap.AnsweredFlag: true,
	imap.FlaggedFlag:  true,
	imap.DeletedFlag:  true,
	imap.DraftFlag:    true,
}

var skippedMailboxes = regexp.MustCompile(`^(Shared Folders|Other Users)/`)

// Driver migrates mail folders over IMAP. It acts as both exporter and
// importer; the connection is established eagerly at construction, so
// Authenticate is a no-op.
type Driver struct {
	account *account.Account
	client  Client
}

// DriverFactory builds IMAP drivers for the imap/imaps schemes.
type DriverFactory struct {
	Clients   Factory
	TLSConfig *tls.Config
	Debug     bool
}

func (f DriverFactory) NewExporter(acct *account.Account) (migrate.Exporter, error) {
	return NewDriver(acct, f.Clients, f.TLSConfig, f.Debug)
}

func (f DriverFactory) NewImporter(acct *account.Account) (migrate.Importer, error) {
	return NewDriver(acct, f.Clients, f.TLSConfig, f.Debug)
}

func NewDriver(acct *account.Account, factory Factory, tlsConfig *tls.Config, debug bool) (*Driver, error) {
	useTLS := acct.Scheme == "imaps" || acct.Scheme == "ssl"
	defaultPort := "143"
	if useTLS {
		defaultPort = "993"
	}

	var auth Authenticator
	if acct.LoginAs != "" {
		auth = NewProxyAuthenticator(acct.Username, acct.Password, acct.LoginAs)
	} else {
		auth = NewNormalAuthenticator(acct.Username, acct.Password)
	}

	c, err := factory.NewClient(&ClientConfig{
		HostPort:  acct.HostPort(defaultPort),
		Auth:      auth,
		TLS:       useTLS,
		TLSConfig: tlsConfig,
		Debug:     debug,
	})
	if err != nil {
		return nil, &migrate.AuthenticationError{Account: acct.Host, Err: err}
	}

	return &Driver{account: acct, client: c}, nil
}

// Authenticate is a no-op; the connection is opened and authenticated at
// construction.
func (d *Driver) Authenticate(ctx context.Context) error {
	return nil
}

func (d *Driver) Close() error {
	return d.client.Logout()
}

// GetFolders lists all mailboxes as mail-type folders, excluding shared
// and other-user namespaces.
func (d *Driver) GetFolders(ctx context.Context, types []migrate.FolderType) ([]migrate.Folder, error) {
	if !migrate.HasType(types, migrate.TypeMail) {
		return nil, nil
	}

	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- d.client.List("", "*", ch)
	}()

	var folders []migrate.Folder
	for mb := range ch {
		if skippedMailboxes.MatchString(mb.Name) {
			log.WithField("mailbox", mb.Name).Debug("imap_folder_skipped")
			continue
		}

		folders = append(folders, migrate.Folder{
			Name:     path(mb.Name),
			Fullname: mb.Name,
			Type:     migrate.TypeMail,
			Total:    -1,
		})
	}

	if err := <-done; err != nil {
		return nil, &migrate.TransportError{Op: "imap list", Err: err}
	}

	return folders, nil
}

func path(name string) string {
	if idx := strings.LastIndexAny(name, "/."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// CreateFolder creates a destination mailbox. INBOX always exists and an
// already-existing mailbox is not an error.
func (d *Driver) CreateFolder(ctx context.Context, folder *migrate.Folder) error {
	if folder.Type != migrate.TypeMail {
		return &migrate.UnsupportedTypeError{Type: string(folder.Type)}
	}

	if folder.Fullname == "INBOX" {
		return nil
	}

	if err := d.client.Create(folder.Fullname); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "exists") {
			log.WithField("mailbox", folder.Fullname).Debug("imap_folder_exists")
			return nil
		}
		return &migrate.StorageError{Op: "imap create " + folder.Fullname, Err: err}
	}

	return nil
}

// GetItems builds the incremental-sync index of the destination mailbox:
// Message-Id mapped to uid, appendable flags, internal date and size.
func (d *Driver) GetItems(ctx context.Context, folder *migrate.Folder) (map[string]migrate.Existing, error) {
	msgs, err := d.fetchIndex(folder.Fullname)
	if err != nil {
		return nil, err
	}

	index := make(map[string]migrate.Existing, len(msgs))
	for _, msg := range msgs {
		id := d.messageID(msg, folder.Fullname)
		index[id] = migrate.Existing{
			UID:       msg.Uid,
			Flags:     filterFlags(msg.Flags),
			Timestamp: msg.InternalDate,
			Size:      msg.Size,
		}
	}

	return index, nil
}

// FetchItemList enumerates the source mailbox and emits batches of items
// that are new or changed relative to the destination index. Messages
// whose Message-Id already exists with identical flags, date and size are
// skipped; that skip is the resumability mechanism.
func (d *Driver) FetchItemList(ctx context.Context, folder *migrate.Folder, fn func(*migrate.ItemSet) error, importer migrate.Importer) error {
	existing, err := importer.GetItems(ctx, folder)
	if err != nil {
		return err
	}

	msgs, err := d.fetchIndex(folder.Fullname)
	if err != nil {
		return err
	}

	if len(msgs) == 0 {
		log.WithField("mailbox", folder.Fullname).Debug("imap_nothing_to_migrate")
		return nil
	}

	set := &migrate.ItemSet{}

	for _, msg := range msgs {
		id := d.messageID(msg, folder.Fullname)
		flags := filterFlags(msg.Flags)

		var exists *migrate.Existing
		if ex, ok := existing[id]; ok {
			if flagsEqual(flags, ex.Flags) && msg.InternalDate.Unix() == ex.Timestamp.Unix() && msg.Size == ex.Size {
				continue
			}
			exCopy := ex
			exists = &exCopy
		}

		set.Items = append(set.Items, migrate.Item{
			ID:       fmt.Sprintf("%d:%s", msg.Uid, id),
			Folder:   folder,
			Existing: exists,
		})

		if len(set.Items) == chunkSize {
			if err := fn(set); err != nil {
				return err
			}
			set = &migrate.ItemSet{}
		}
	}

	if len(set.Items) > 0 {
		return fn(set)
	}

	return nil
}

// FetchItem stages one message: flags and internal date always, the raw
// body only when the message actually changed relative to the existing
// destination copy.
func (d *Driver) FetchItem(ctx context.Context, item *migrate.Item) error {
	uidStr, _, ok := strings.Cut(item.ID, ":")
	if !ok {
		return fmt.Errorf("malformed imap item id: %q", item.ID)
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return fmt.Errorf("malformed imap item id: %q", item.ID)
	}

	if _, err := d.client.Select(item.Folder.Fullname, true); err != nil {
		return &migrate.StorageError{Op: "imap select " + item.Folder.Fullname, Err: err}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	msg, err := d.fetchOne(seqset, []imap.FetchItem{imap.FetchFlags, imap.FetchInternalDate, imap.FetchRFC822Size})
	if err != nil {
		return &migrate.StorageError{Op: fmt.Sprintf("imap fetch %s/%d", item.Folder.Fullname, uid), Err: err}
	}

	item.Flags = filterFlags(msg.Flags)
	item.InternalDate = msg.InternalDate

	// Same date and size as the existing copy means only the flags
	// changed; no payload to stage.
	if item.Existing != nil && msg.InternalDate.Unix() == item.Existing.Timestamp.Unix() && msg.Size == item.Existing.Size {
		return nil
	}

	section := &imap.BodySectionName{Peek: true}
	msg, err = d.fetchOne(seqset, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return &migrate.StorageError{Op: fmt.Sprintf("imap fetch body %s/%d", item.Folder.Fullname, uid), Err: err}
	}

	body := msg.GetBody(section)
	if body == nil {
		return &migrate.StorageError{Op: fmt.Sprintf("imap fetch body %s/%d", item.Folder.Fullname, uid), Err: fmt.Errorf("no body section returned")}
	}

	if err := os.MkdirAll(item.Folder.Location, 0o750); err != nil {
		return err
	}

	location := filepath.Join(item.Folder.Location, fmt.Sprintf("%d.eml", uid))
	f, err := os.Create(location)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return &migrate.StorageError{Op: "staging " + location, Err: err}
	}

	item.Filename = location
	return nil
}

// CreateItem appends the staged message with its preserved flags and
// internal date. For a changed message that already exists at the
// destination, the stale copy is expunged; for a flags-only change the
// flags are synchronized in place.
func (d *Driver) CreateItem(ctx context.Context, item *migrate.Item) error {
	mailbox := item.Folder.Fullname

	if item.Filename != "" {
		data, err := os.ReadFile(item.Filename)
		if err != nil {
			return err
		}

		if err := d.client.Append(mailbox, item.Flags, item.InternalDate, bytes.NewBuffer(data)); err != nil {
			return &migrate.StorageError{Op: "imap append " + mailbox, Err: err}
		}

		if item.Existing != nil {
			return d.expunge(mailbox, item.Existing.UID)
		}

		return nil
	}

	if item.Existing != nil {
		return d.syncFlags(mailbox, item.Existing.UID, item.Existing.Flags, item.Flags)
	}

	// Nothing staged and nothing to update; the exporter decided this
	// item needs no transfer.
	return nil
}

func (d *Driver) expunge(mailbox string, uid uint32) error {
	if _, err := d.client.Select(mailbox, false); err != nil {
		return &migrate.StorageError{Op: "imap select " + mailbox, Err: err}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	op := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := d.client.UidStore(seqset, op, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return &migrate.StorageError{Op: fmt.Sprintf("imap store %s/%d", mailbox, uid), Err: err}
	}

	if err := d.client.Expunge(nil); err != nil {
		return &migrate.StorageError{Op: "imap expunge " + mailbox, Err: err}
	}

	return nil
}

func (d *Driver) syncFlags(mailbox string, uid uint32, have, want []string) error {
	add := diffFlags(want, have)
	remove := diffFlags(have, want)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	if _, err := d.client.Select(mailbox, false); err != nil {
		return &migrate.StorageError{Op: "imap select " + mailbox, Err: err}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	if len(add) > 0 {
		op := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := d.client.UidStore(seqset, op, toInterfaces(add), nil); err != nil {
			return &migrate.StorageError{Op: fmt.Sprintf("imap store %s/%d", mailbox, uid), Err: err}
		}
	}

	if len(remove) > 0 {
		op := imap.FormatFlagsOp(imap.RemoveFlags, true)
		if err := d.client.UidStore(seqset, op, toInterfaces(remove), nil); err != nil {
			return &migrate.StorageError{Op: fmt.Sprintf("imap store %s/%d", mailbox, uid), Err: err}
		}
	}

	return nil
}

// fetchIndex fetches uid, flags, envelope, internal date and size for
// every message in the mailbox.
func (d *Driver) fetchIndex(mailbox string) ([]*imap.Message, error) {
	status, err := d.client.Select(mailbox, true)
	if err != nil {
		return nil, &migrate.StorageError{Op: "imap select " + mailbox, Err: err}
	}

	if status.Messages == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(1, status.Messages)

	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
	}

	ch := make(chan *imap.Message, 20)
	done := make(chan error, 1)
	go func() {
		done <- d.client.Fetch(seqset, items, ch)
	}()

	var msgs []*imap.Message
	for msg := range ch {
		msgs = append(msgs, msg)
	}

	if err := <-done; err != nil {
		return nil, &migrate.TransportError{Op: "imap fetch " + mailbox, Err: err}
	}

	return msgs, nil
}

func (d *Driver) fetchOne(seqset *imap.SeqSet, items []imap.FetchItem) (*imap.Message, error) {
	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- d.client.UidFetch(seqset, items, ch)
	}()

	var msg *imap.Message
	for m := range ch {
		msg = m
	}

	if err := <-done; err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message not found")
	}

	return msg, nil
}

// messageID returns the message's Message-Id, or a deterministic
// substitute derived from the mailbox, sender and date when the header is
// missing.
func (d *Driver) messageID(msg *imap.Message, mailbox string) string {
	if msg.Envelope != nil && msg.Envelope.MessageId != "" {
		return msg.Envelope.MessageId
	}

	var from string
	var date time.Time
	if msg.Envelope != nil {
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		date = msg.Envelope.Date
	}
	if date.IsZero() {
		date = msg.InternalDate
	}

	return fmt.Sprintf("%x", md5.Sum([]byte(mailbox+from+date.UTC().Format(time.RFC3339))))
}

func filterFlags(flags []string) []string {
	var out []string
	for _, f := range flags {
		if appendableFlags[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// flagsEqual compares two filtered, sorted flag lists.
func flagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func diffFlags(a, b []string) []string {
	in := map[string]bool{}
	for _, f := range b {
		in[f] = true
	}
	var out []string
	for _, f := range a {
		if !in[f] {
			out = append(out, f)
		}
	}
	return out
}

func toInterfaces(flags []string) []interface{} {
	out := make([]interface{}, len(flags))
	for i, f := range flags {
		out[i] = f
	}
	return out
}
