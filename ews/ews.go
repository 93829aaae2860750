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
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/migrate"
)

// pageSize is the FindItem page length; one page becomes one item batch.
const pageSize = 100

// Folders Exchange maintains internally and which have no business being
// migrated, matched on fullname.
var folderExceptions = map[string]bool{
	"AllContacts":                          true,
	"AllPersonMetadata":                    true,
	"Calendar/United States holidays":      true,
	"Document Centric Conversations":       true,
	"ExternalContacts":                     true,
	"Favorites":                            true,
	"Graph Files":                          true,
	"My Contacts":                          true,
	"MyContactsExtended":                   true,
	"Outbox":                               true,
	"People I Know":                        true,
	"PersonMetadata":                       true,
	"RelevantContacts":                     true,
	"SharedFilesSearchFolder":              true,
	"Sharing":                              true,
	"SpoolsPresentSharedItemsSearchFolder": true,
	"SpoolsSearchFolder":                   true,
	"To-Do Search":                         true,
}

const owaFolderPrefix = "OwaFV15.1All"

// Driver exports folders and items from an Exchange mailbox. Import is
// not supported; Exchange is a source only.
type Driver struct {
	account *account.Account
	caller  Caller
	url     string
}

// DriverFactory builds EWS drivers for the ews scheme. Caller overrides
// the SOAP transport in tests.
type DriverFactory struct {
	Caller Caller
}

func (f DriverFactory) NewExporter(acct *account.Account) (migrate.Exporter, error) {
	return NewDriver(acct, f.Caller), nil
}

func (f DriverFactory) NewImporter(acct *account.Account) (migrate.Importer, error) {
	return nil, fmt.Errorf("ews: exchange accounts can only be migrated from, not to")
}

func NewDriver(acct *account.Account, caller Caller) *Driver {
	d := &Driver{account: acct, caller: caller}

	// An explicit endpoint in the credential skips autodiscovery.
	if acct.URI != "" && acct.Host != "" {
		d.url = strings.Replace(acct.URI, "ews://", "https://", 1)
	}

	return d
}

// SessionState persists the resolved endpoint so jobs skip autodiscovery.
func (d *Driver) SessionState() map[string]string {
	return map[string]string{"ews_url": d.url}
}

func (d *Driver) RestoreSession(state map[string]string) {
	if u := state["ews_url"]; u != "" {
		d.url = u
	}
}

// Authenticate resolves the endpoint if needed and probes it by binding
// the mailbox root.
func (d *Driver) Authenticate(ctx context.Context) error {
	if d.url == "" && d.caller == nil {
		u, err := Autodiscover(ctx, d.mailbox(), d.account.Username, d.account.Password)
		if err != nil {
			return err
		}
		d.url = u
	}

	req := &GetFolderRequest{
		Shape:     FolderShape{BaseShape: "IdOnly"},
		FolderIDs: FolderIDsElem{Distinguished: &DistinguishedFolder{ID: "msgfolderroot"}},
	}

	var resp GetFolderResponse
	if err := d.call(ctx, "GetFolder", req, &resp); err != nil {
		var serr *StatusError
		if errors.As(err, &serr) && serr.Unauthorized() {
			return &migrate.AuthenticationError{Account: d.account.Host, Err: err}
		}
		return err
	}

	for _, m := range resp.Messages {
		if err := checkResponse(m.ResponseClass, m.ResponseCode, m.MessageText); err != nil {
			return err
		}
	}
	return nil
}

// mailbox is the account being exported: the impersonated user when
// proxy-style credentials are used, the authenticating user otherwise.
func (d *Driver) mailbox() string {
	if d.account.LoginAs != "" {
		return d.account.LoginAs
	}
	return d.account.Email
}

// GetFolders walks the whole folder tree and keeps the folders whose
// class maps to a migratable type.
func (d *Driver) GetFolders(ctx context.Context, types []migrate.FolderType) ([]migrate.Folder, error) {
	req := &FindFolderRequest{
		Traversal: "Deep",
		Shape: FolderShape{
			BaseShape: "Default",
			Extra: &AdditionalProperties{
				Fields: []FieldURI{{FieldURI: "folder:FolderClass"}, {FieldURI: "folder:ParentFolderId"}},
			},
		},
		ParentIDs: ParentFolderIDs{Distinguished: &DistinguishedFolder{ID: "msgfolderroot"}},
	}

	var resp FindFolderResponse
	if err := d.call(ctx, "FindFolder", req, &resp); err != nil {
		return nil, err
	}
	for _, m := range resp.Messages {
		if err := checkResponse(m.ResponseClass, m.ResponseCode, m.MessageText); err != nil {
			return nil, err
		}
	}

	byID := map[string]BaseFolder{}
	var order []string
	for _, msg := range resp.Messages {
		for _, f := range msg.RootFolder.Folders.Entries {
			byID[f.FolderID.ID] = f
			order = append(order, f.FolderID.ID)
		}
	}

	var folders []migrate.Folder
	for _, id := range order {
		f := byID[id]

		t := classType(f.FolderClass)
		if t == "" || !migrate.HasType(types, t) {
			continue
		}

		fullname := folderPath(byID, f)
		if folderExceptions[fullname] || strings.HasPrefix(fullname, owaFolderPrefix) {
			log.WithField("folder", fullname).Debug("ews_folder_skipped")
			continue
		}

		folders = append(folders, migrate.Folder{
			ID:       f.FolderID.ID,
			Name:     f.DisplayName,
			Fullname: fullname,
			Type:     t,
			Total:    f.TotalCount,
		})
	}

	return folders, nil
}

// classType maps an Exchange folder class to a migratable type. Mail
// folders are excluded: mail moves over IMAP, not EWS.
func classType(class string) migrate.FolderType {
	switch {
	case strings.HasPrefix(class, "IPF.Appointment"):
		return migrate.TypeEvent
	case strings.HasPrefix(class, "IPF.Contact"):
		return migrate.TypeContact
	case strings.HasPrefix(class, "IPF.Task"):
		return migrate.TypeTask
	}
	return ""
}

// folderPath assembles the hierarchical fullname by following parent ids.
// Parents outside the result set (the mailbox root) terminate the walk.
func folderPath(byID map[string]BaseFolder, f BaseFolder) string {
	parts := []string{f.DisplayName}
	for {
		parent, ok := byID[f.ParentFolderID.ID]
		if !ok {
			break
		}
		parts = append([]string{parent.DisplayName}, parts...)
		f = parent
	}
	return strings.Join(parts, "/")
}

// FetchItemList pages through the folder with IdOnly shape. Each page
// becomes one batch; there is no cheap change detector on the Exchange
// side, so every item is fetched and the destination overwrites by UID.
func (d *Driver) FetchItemList(ctx context.Context, folder *migrate.Folder, fn func(*migrate.ItemSet) error, _ migrate.Importer) error {
	offset := 0

	for {
		req := &FindItemRequest{
			Traversal: "Shallow",
			Shape:     ItemShape{BaseShape: "IdOnly"},
			Page: IndexedPageItemView{
				MaxEntries: pageSize,
				Offset:     offset,
				BasePoint:  "Beginning",
			},
			ParentIDs: ParentFolderIDs{Folder: &FolderRef{ID: folder.ID}},
		}

		var resp FindItemResponse
		if err := d.call(ctx, "FindItem", req, &resp); err != nil {
			return err
		}
		if len(resp.Messages) == 0 {
			return fmt.Errorf("ews: empty FindItem response")
		}

		msg := resp.Messages[0]
		if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
			return err
		}

		if n := len(msg.RootFolder.Items.Entries); n > 0 {
			set := &migrate.ItemSet{Items: make([]migrate.Item, 0, n)}
			for _, it := range msg.RootFolder.Items.Entries {
				set.Items = append(set.Items, migrate.Item{
					ID:     it.ItemID.ID,
					Folder: folder,
				})
			}

			if err := fn(set); err != nil {
				return err
			}
			offset += n
		}

		if msg.RootFolder.IncludesLastItemInRange || len(msg.RootFolder.Items.Entries) == 0 {
			return nil
		}
	}
}

// FetchItem downloads one item with all properties and converts it to
// iCalendar or vCard. Items of a class no converter understands produce
// no payload, which the engine treats as "nothing to transfer".
func (d *Driver) FetchItem(ctx context.Context, item *migrate.Item) error {
	req := &GetItemRequest{
		Shape:   ItemShape{BaseShape: "AllProperties"},
		ItemIDs: ItemIDs{IDs: []ItemRef{{ID: item.ID}}},
	}

	var resp GetItemResponse
	if err := d.call(ctx, "GetItem", req, &resp); err != nil {
		return err
	}
	if len(resp.Messages) == 0 || len(resp.Messages[0].Items.Entries) == 0 {
		return fmt.Errorf("ews: item %s not returned", item.ID)
	}
	msg := resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
		return err
	}

	remote := msg.Items.Entries[0]

	conv := converterFor(&remote)
	if conv == nil {
		log.WithFields(log.Fields{
			"item":  item.ID,
			"class": remote.ItemClass,
		}).Warn("ews_item_class_unsupported")
		return nil
	}

	attachments, err := d.fetchAttachments(ctx, &remote)
	if err != nil {
		return err
	}

	payload, err := conv.convert(&remote, attachments)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(item.Folder.Location, 0o750); err != nil {
		return err
	}

	location := filepath.Join(item.Folder.Location, itemUID(&remote)+conv.ext())
	if err := os.WriteFile(location, payload, 0o640); err != nil {
		return err
	}

	item.Filename = location
	return nil
}

func (d *Driver) fetchAttachments(ctx context.Context, remote *Item) ([]inlineAttachment, error) {
	if len(remote.Attachments) == 0 {
		return nil, nil
	}

	refs := make([]ItemRef, 0, len(remote.Attachments))
	for _, a := range remote.Attachments {
		refs = append(refs, ItemRef{ID: a.AttachmentID.ID})
	}

	req := &GetAttachmentRequest{IDs: AttachmentIDs{IDs: refs}}

	var resp GetAttachmentResponse
	if err := d.call(ctx, "GetAttachment", req, &resp); err != nil {
		return nil, err
	}

	var out []inlineAttachment
	for _, msg := range resp.Messages {
		if msg.ResponseClass == "Error" {
			log.WithField("code", msg.ResponseCode).Warn("ews_attachment_skipped")
			continue
		}
		for _, a := range msg.Attachments {
			out = append(out, inlineAttachment{
				Name:        a.Name,
				ContentType: a.ContentType,
				Content:     a.Content,
			})
		}
	}

	return out, nil
}

// itemUID is the stable identity carried into the destination object: the
// item's own UID when Exchange exposes one, a digest of its immutable id
// otherwise.
func itemUID(remote *Item) string {
	if remote.UID != "" {
		return remote.UID
	}
	return fmt.Sprintf("%x", sha1.Sum([]byte(remote.ItemID.ID)))
}

func (d *Driver) call(ctx context.Context, op string, req, resp interface{}) error {
	c := d.caller
	if c == nil {
		c = &SOAPClient{
			URL:         d.url,
			Username:    d.account.Username,
			Password:    d.account.Password,
			Impersonate: d.account.LoginAs,
		}
	}

	if err := c.Call(ctx, op, req, resp); err != nil {
		return &migrate.TransportError{Op: "ews " + op, Err: err}
	}
	return nil
}

func checkResponse(class, code, text string) error {
	if class == "Error" {
		return fmt.Errorf("ews: %s: %s", code, text)
	}
	return nil
}
