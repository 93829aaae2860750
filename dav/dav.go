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

// Package dav migrates events, tasks, contacts and contact groups between
// CalDAV/CardDAV servers.
package dav

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/migrate"
)

// chunkSize bounds the number of items handed to the engine per batch.
const chunkSize = 25

// nameSeparator flattens hierarchical folder names into the flat
// collection display names DAV servers expose. The mapping is bijective as
// long as display names never contain a literal '/'.
const nameSeparator = " » "

// collection is one CalDAV/CardDAV collection as discovered under a home
// set.
type collection struct {
	ID       string
	Href     string
	Name     string
	Fullname string
	Type     migrate.FolderType
}

// Driver migrates groupware objects over CalDAV and CardDAV. It serves
// both directions.
type Driver struct {
	account *account.Account
	client  *Client

	// Collections discovered per home set, cached for the lifetime of one
	// job.
	cache map[migrate.FolderType][]collection
}

// DriverFactory builds DAV drivers for the dav/davs schemes.
type DriverFactory struct{}

func (DriverFactory) NewExporter(acct *account.Account) (migrate.Exporter, error) {
	return NewDriver(acct)
}

func (DriverFactory) NewImporter(acct *account.Account) (migrate.Importer, error) {
	return NewDriver(acct)
}

func NewDriver(acct *account.Account) (*Driver, error) {
	u := acct.URI
	if u == "" {
		return nil, fmt.Errorf("dav: account %q carries no server url", acct.Host)
	}
	u = strings.Replace(u, "davs://", "https://", 1)
	u = strings.Replace(u, "dav://", "http://", 1)

	client, err := NewClient(u, acct.Username, acct.Password)
	if err != nil {
		return nil, err
	}

	return &Driver{
		account: acct,
		client:  client,
		cache:   map[migrate.FolderType][]collection{},
	}, nil
}

// Authenticate probes the server with OPTIONS. A server that advertises
// neither calendar-access nor addressbook support cannot take part in a
// migration, and a 401/403 means the credentials are wrong.
func (d *Driver) Authenticate(ctx context.Context) error {
	classes, err := d.client.Options(ctx)
	if err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) && herr.Unauthorized() {
			return &migrate.AuthenticationError{Account: d.account.Host, Err: err}
		}
		return &migrate.TransportError{Op: "dav options", Err: err}
	}

	for _, class := range classes {
		if class == "calendar-access" || strings.HasPrefix(class, "addressbook") {
			return nil
		}
	}

	return &migrate.AuthenticationError{
		Account: d.account.Host,
		Err:     fmt.Errorf("server advertises no caldav/carddav support"),
	}
}

// GetFolders enumerates the calendar and addressbook home sets and maps
// each collection to a folder, un-flattening display names back into
// hierarchical fullnames.
func (d *Driver) GetFolders(ctx context.Context, types []migrate.FolderType) ([]migrate.Folder, error) {
	var folders []migrate.Folder

	for _, t := range []migrate.FolderType{
		migrate.TypeEvent, migrate.TypeTask, migrate.TypeContact, migrate.TypeGroup,
	} {
		if !migrate.HasType(types, t) {
			continue
		}

		cols, err := d.collections(ctx, t)
		if err != nil {
			return nil, err
		}

		for _, col := range cols {
			folders = append(folders, migrate.Folder{
				ID:       col.ID,
				Name:     leafName(col.Fullname),
				Fullname: col.Fullname,
				Type:     t,
				Total:    -1,
			})
		}
	}

	return folders, nil
}

func leafName(fullname string) string {
	if idx := strings.LastIndex(fullname, "/"); idx >= 0 {
		return fullname[idx+1:]
	}
	return fullname
}

// CreateFolder ensures a destination collection exists for the folder. An
// existing collection with the same flattened name and type is reused; a
// missing one is created with a fresh uuid id via extended MKCOL.
func (d *Driver) CreateFolder(ctx context.Context, folder *migrate.Folder) error {
	if _, err := d.resolve(ctx, folder); err == nil {
		log.WithField("folder", folder.Fullname).Debug("dav_folder_exists")
		return nil
	}

	id := uuid.New().String()
	href := d.homePath(folder.Type) + id + "/"

	if err := d.client.MkCol(ctx, href, mkColBody(folder.Type, flatten(folder.Fullname))); err != nil {
		return &migrate.StorageError{Op: "dav mkcol " + folder.Fullname, Err: err}
	}

	d.cache[folder.Type] = append(d.cache[folder.Type], collection{
		ID:       id,
		Href:     href,
		Name:     flatten(folder.Fullname),
		Fullname: folder.Fullname,
		Type:     folder.Type,
	})

	log.WithFields(log.Fields{
		"folder": folder.Fullname,
		"id":     id,
	}).Info("dav_folder_created")

	return nil
}

// GetItems indexes the destination collection by object UID. REV (cards)
// and DTSTAMP (events, tasks) are extracted so the exporter can skip
// objects that did not change.
func (d *Driver) GetItems(ctx context.Context, folder *migrate.Folder) (map[string]migrate.Existing, error) {
	col, err := d.resolve(ctx, folder)
	if err != nil {
		return nil, err
	}

	ms, err := d.client.Report(ctx, col.Href, queryBody(folder.Type))
	if err != nil {
		return nil, &migrate.StorageError{Op: "dav report " + folder.Fullname, Err: err}
	}

	index := make(map[string]migrate.Existing, len(ms.Responses))
	for _, resp := range ms.Responses {
		prop := resp.OkProp()
		if prop == nil {
			continue
		}

		data := prop.CalendarData
		if data == "" {
			data = prop.AddressData
		}

		uid := objectProp(data, "UID")
		if uid == "" {
			continue
		}

		index[uid] = migrate.Existing{
			Href:    resp.Href,
			Rev:     objectProp(data, "REV"),
			DTStamp: objectProp(data, "DTSTAMP"),
		}
	}

	return index, nil
}

// FetchItemList enumerates the source collection and emits batches of
// objects the destination does not have an up-to-date copy of.
func (d *Driver) FetchItemList(ctx context.Context, folder *migrate.Folder, fn func(*migrate.ItemSet) error, importer migrate.Importer) error {
	existing, err := importer.GetItems(ctx, folder)
	if err != nil {
		return err
	}

	col, err := d.resolve(ctx, folder)
	if err != nil {
		return err
	}

	ms, err := d.client.Report(ctx, col.Href, queryBody(folder.Type))
	if err != nil {
		return &migrate.StorageError{Op: "dav report " + folder.Fullname, Err: err}
	}

	set := &migrate.ItemSet{}

	for _, resp := range ms.Responses {
		prop := resp.OkProp()
		if prop == nil {
			continue
		}

		data := prop.CalendarData
		if data == "" {
			data = prop.AddressData
		}
		uid := objectProp(data, "UID")
		if uid == "" {
			continue
		}

		var exists *migrate.Existing
		if ex, ok := existing[uid]; ok {
			if upToDate(folder.Type, data, &ex) {
				continue
			}
			exCopy := ex
			exists = &exCopy
		}

		set.Items = append(set.Items, migrate.Item{
			ID:       resp.Href,
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

// upToDate reports whether the destination copy matches the source object.
// Cards carry a REV property; calendar objects are compared on DTSTAMP.
func upToDate(t migrate.FolderType, sourceData string, ex *migrate.Existing) bool {
	switch t {
	case migrate.TypeContact, migrate.TypeGroup:
		return ex.Rev != "" && ex.Rev == objectProp(sourceData, "REV")
	default:
		return ex.DTStamp != "" && ex.DTStamp == objectProp(sourceData, "DTSTAMP")
	}
}

// FetchItem downloads one object and stages it under the folder location.
func (d *Driver) FetchItem(ctx context.Context, item *migrate.Item) error {
	data, err := d.client.Get(ctx, item.ID)
	if err != nil {
		return &migrate.StorageError{Op: "dav get " + item.ID, Err: err}
	}

	if err := os.MkdirAll(item.Folder.Location, 0o750); err != nil {
		return err
	}

	location := filepath.Join(item.Folder.Location, path.Base(item.ID))
	if err := os.WriteFile(location, data, 0o640); err != nil {
		return err
	}

	item.Filename = location
	return nil
}

// CreateItem uploads the staged object. A changed object is PUT over its
// existing href; a new one gets a path derived from its UID.
func (d *Driver) CreateItem(ctx context.Context, item *migrate.Item) error {
	if item.Filename == "" {
		return nil
	}

	f, err := os.Open(item.Filename)
	if err != nil {
		return err
	}
	defer f.Close()

	var href string
	if item.Existing != nil && item.Existing.Href != "" {
		href = item.Existing.Href
	} else {
		data, err := os.ReadFile(item.Filename)
		if err != nil {
			return err
		}
		uid := objectProp(string(data), "UID")
		if uid == "" {
			return fmt.Errorf("dav: staged object %s carries no UID", item.Filename)
		}

		col, err := d.resolve(ctx, item.Folder)
		if err != nil {
			return err
		}
		href = col.Href + url.PathEscape(uid) + objectExt(item.Folder.Type)
	}

	if err := d.client.Put(ctx, href, contentType(item.Folder.Type), f); err != nil {
		return &migrate.StorageError{Op: "dav put " + href, Err: err}
	}

	return nil
}

// collections lists (and caches) the relevant home set, keeping only
// collections matching the folder type.
func (d *Driver) collections(ctx context.Context, t migrate.FolderType) ([]collection, error) {
	if cols, ok := d.cache[t]; ok {
		return cols, nil
	}

	home := d.homePath(t)
	ms, err := d.client.PropFind(ctx, home, "1", propFindBody)
	if err != nil {
		return nil, &migrate.StorageError{Op: "dav propfind " + home, Err: err}
	}

	var cols []collection
	for _, resp := range ms.Responses {
		prop := resp.OkProp()
		if prop == nil || prop.ResourceType.Collection == nil {
			continue
		}
		if strings.TrimRight(resp.Href, "/") == strings.TrimRight(home, "/") {
			continue
		}
		if collectionType(prop) != t {
			continue
		}

		name := prop.DisplayName
		if name == "" {
			name = path.Base(strings.TrimRight(resp.Href, "/"))
		}

		cols = append(cols, collection{
			ID:       path.Base(strings.TrimRight(resp.Href, "/")),
			Href:     resp.Href,
			Name:     name,
			Fullname: unflatten(name),
			Type:     t,
		})
	}

	d.cache[t] = cols
	return cols, nil
}

// resolve maps a folder to the destination/source collection with a
// matching fullname and type.
func (d *Driver) resolve(ctx context.Context, folder *migrate.Folder) (*collection, error) {
	cols, err := d.collections(ctx, folder.Type)
	if err != nil {
		return nil, err
	}

	for i := range cols {
		if cols[i].Fullname == folder.Fullname {
			return &cols[i], nil
		}
	}

	return nil, &migrate.FolderNotFoundError{Fullname: folder.Fullname}
}

// collectionType classifies a collection. Calendars supporting only VTODO
// are task folders; everything else with the calendar resource type holds
// events. Addressbooks hold both contacts and groups, so they surface as
// contact folders.
func collectionType(prop *Prop) migrate.FolderType {
	switch {
	case prop.ResourceType.AddressBook != nil:
		return migrate.TypeContact
	case prop.ResourceType.Calendar != nil:
		for _, comp := range prop.Components.Comps {
			if comp.Name == "VEVENT" {
				return migrate.TypeEvent
			}
		}
		for _, comp := range prop.Components.Comps {
			if comp.Name == "VTODO" {
				return migrate.TypeTask
			}
		}
		return migrate.TypeEvent
	}
	return ""
}

func (d *Driver) homePath(t migrate.FolderType) string {
	base := strings.TrimRight(d.client.base.Path, "/")
	user := url.PathEscape(d.account.Username)

	switch t {
	case migrate.TypeContact, migrate.TypeGroup:
		return base + "/addressbooks/" + user + "/"
	default:
		return base + "/calendars/" + user + "/"
	}
}

func flatten(fullname string) string {
	return strings.ReplaceAll(fullname, "/", nameSeparator)
}

func unflatten(name string) string {
	return strings.ReplaceAll(name, nameSeparator, "/")
}

func contentType(t migrate.FolderType) string {
	if t == migrate.TypeContact || t == migrate.TypeGroup {
		return "text/vcard; charset=utf-8"
	}
	return "text/calendar; charset=utf-8"
}

func objectExt(t migrate.FolderType) string {
	if t == migrate.TypeContact || t == migrate.TypeGroup {
		return ".vcf"
	}
	return ".ics"
}

// objectProp extracts a single property value from serialized iCalendar or
// vCard data. Good enough for the short identity props (UID, REV,
// DTSTAMP) which servers do not fold.
func objectProp(data, name string) string {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !strings.HasPrefix(line, name) {
			continue
		}
		rest := line[len(name):]
		if strings.HasPrefix(rest, ":") {
			return rest[1:]
		}
	}
	return ""
}

const propFindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:prop>
  <d:displayname/>
  <d:resourcetype/>
  <c:supported-calendar-component-set/>
 </d:prop>
</d:propfind>`

// queryBody builds the REPORT request enumerating a collection with its
// object data.
func queryBody(t migrate.FolderType) string {
	if t == migrate.TypeContact || t == migrate.TypeGroup {
		return `<?xml version="1.0" encoding="utf-8"?>
<c:addressbook-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:carddav">
 <d:prop>
  <d:getetag/>
  <c:address-data/>
 </d:prop>
</c:addressbook-query>`
	}

	comp := "VEVENT"
	if t == migrate.TypeTask {
		comp = "VTODO"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:prop>
  <d:getetag/>
  <c:calendar-data/>
 </d:prop>
 <c:filter>
  <c:comp-filter name="VCALENDAR">
   <c:comp-filter name="%s"/>
  </c:comp-filter>
 </c:filter>
</c:calendar-query>`, comp)
}

// mkColBody builds the extended MKCOL request for a new collection.
func mkColBody(t migrate.FolderType, displayName string) string {
	var resourceType, extra string

	switch t {
	case migrate.TypeContact, migrate.TypeGroup:
		resourceType = `<d:collection/><card:addressbook xmlns:card="urn:ietf:params:xml:ns:carddav"/>`
	case migrate.TypeTask:
		resourceType = `<d:collection/><c:calendar/>`
		extra = `<c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set>`
	default:
		resourceType = `<d:collection/><c:calendar/>`
		extra = `<c:supported-calendar-component-set><c:comp name="VEVENT"/></c:supported-calendar-component-set>`
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<d:mkcol xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:set>
  <d:prop>
   <d:resourcetype>%s</d:resourcetype>
   <d:displayname>%s</d:displayname>
   %s
  </d:prop>
 </d:set>
</d:mkcol>`, resourceType, xmlEscape(displayName), extra)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
