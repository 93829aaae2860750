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

package dav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/migrate"
)

func buildDriver(t *testing.T, srv *httptest.Server) *Driver {
	addr := strings.TrimPrefix(srv.URL, "http://")
	acct, err := account.Parse("dav://alice:secret@" + addr)
	assert.NoError(t, err)

	d, err := NewDriver(acct)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return d
}

const calendarsPropfind = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:response>
  <d:href>/calendars/alice/</d:href>
  <d:propstat>
   <d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
 <d:response>
  <d:href>/calendars/alice/cal-1/</d:href>
  <d:propstat>
   <d:prop>
    <d:displayname>Personal Calendar &#187; Work</d:displayname>
    <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
    <c:supported-calendar-component-set><c:comp name="VEVENT"/></c:supported-calendar-component-set>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
 <d:response>
  <d:href>/calendars/alice/tasks-1/</d:href>
  <d:propstat>
   <d:prop>
    <d:displayname>Tasks</d:displayname>
    <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
    <c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`

func TestFlattenRoundTrip(t *testing.T) {
	names := []string{"Calendar", "Personal/Work", "a/b/c"}
	for _, name := range names {
		assert.Equal(t, name, unflatten(flatten(name)))
		assert.NotContains(t, flatten(name), "/")
	}
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Dav", "1, 2, calendar-access")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := buildDriver(t, srv)
	assert.NoError(t, d.Authenticate(context.Background()))
}

func TestAuthenticateNoDAVSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Dav", "1, 2")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := buildDriver(t, srv)
	err := d.Authenticate(context.Background())

	var aerr *migrate.AuthenticationError
	assert.ErrorAs(t, err, &aerr)
}

func TestAuthenticateBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := buildDriver(t, srv)
	err := d.Authenticate(context.Background())

	var aerr *migrate.AuthenticationError
	assert.ErrorAs(t, err, &aerr)
}

func TestGetFolders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/addressbooks/") {
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, `<?xml version="1.0"?><d:multistatus xmlns:d="DAV:"/>`)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, calendarsPropfind)
	}))
	defer srv.Close()

	d := buildDriver(t, srv)

	folders, err := d.GetFolders(context.Background(), []migrate.FolderType{migrate.TypeEvent})
	assert.NoError(t, err)
	if assert.Len(t, folders, 1) {
		assert.Equal(t, "Personal Calendar/Work", folders[0].Fullname)
		assert.Equal(t, "Work", folders[0].Name)
		assert.Equal(t, migrate.TypeEvent, folders[0].Type)
	}

	folders, err = d.GetFolders(context.Background(), []migrate.FolderType{migrate.TypeTask})
	assert.NoError(t, err)
	if assert.Len(t, folders, 1) {
		assert.Equal(t, "Tasks", folders[0].Fullname)
		assert.Equal(t, migrate.TypeTask, folders[0].Type)
	}
}

func TestCreateFolderIdempotent(t *testing.T) {
	var mkcols []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, calendarsPropfind)
		case "MKCOL":
			body, _ := io.ReadAll(r.Body)
			mkcols = append(mkcols, string(body))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	d := buildDriver(t, srv)
	ctx := context.Background()

	// Already present on the server: no MKCOL.
	err := d.CreateFolder(ctx, &migrate.Folder{Fullname: "Personal Calendar/Work", Type: migrate.TypeEvent})
	assert.NoError(t, err)
	assert.Empty(t, mkcols)

	err = d.CreateFolder(ctx, &migrate.Folder{Fullname: "Personal Calendar/Archive", Type: migrate.TypeEvent})
	assert.NoError(t, err)
	if assert.Len(t, mkcols, 1) {
		assert.Contains(t, mkcols[0], "Personal Calendar » Archive")
		assert.Contains(t, mkcols[0], `comp name="VEVENT"`)
	}

	// The new collection is cached; creating it again is a no-op.
	err = d.CreateFolder(ctx, &migrate.Folder{Fullname: "Personal Calendar/Archive", Type: migrate.TypeEvent})
	assert.NoError(t, err)
	assert.Len(t, mkcols, 1)
}

func TestCreateTaskFolderComponentSet(t *testing.T) {
	var mkcol string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, `<?xml version="1.0"?><d:multistatus xmlns:d="DAV:"/>`)
		case "MKCOL":
			body, _ := io.ReadAll(r.Body)
			mkcol = string(body)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	d := buildDriver(t, srv)

	err := d.CreateFolder(context.Background(), &migrate.Folder{Fullname: "Chores", Type: migrate.TypeTask})
	assert.NoError(t, err)
	assert.Contains(t, mkcol, `comp name="VTODO"`)
	assert.NotContains(t, mkcol, `comp name="VEVENT"`)
}

const eventReport = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
 <d:response>
  <d:href>/calendars/alice/cal-1/ev1.ics</d:href>
  <d:propstat>
   <d:prop>
    <d:getetag>"e1"</d:getetag>
    <c:calendar-data>BEGIN:VCALENDAR
BEGIN:VEVENT
UID:ev1
DTSTAMP:20260101T000000Z
END:VEVENT
END:VCALENDAR</c:calendar-data>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
 <d:response>
  <d:href>/calendars/alice/cal-1/ev2.ics</d:href>
  <d:propstat>
   <d:prop>
    <d:getetag>"e2"</d:getetag>
    <c:calendar-data>BEGIN:VCALENDAR
BEGIN:VEVENT
UID:ev2
DTSTAMP:20260102T000000Z
END:VEVENT
END:VCALENDAR</c:calendar-data>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`

func TestGetItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, calendarsPropfind)
		case "REPORT":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, eventReport)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	d := buildDriver(t, srv)

	items, err := d.GetItems(context.Background(), &migrate.Folder{
		Fullname: "Personal Calendar/Work",
		Type:     migrate.TypeEvent,
	})
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "/calendars/alice/cal-1/ev1.ics", items["ev1"].Href)
	assert.Equal(t, "20260101T000000Z", items["ev1"].DTStamp)
}

// stubImporter hands FetchItemList a fixed destination index.
type stubImporter struct {
	items map[string]migrate.Existing
}

func (s *stubImporter) Authenticate(ctx context.Context) error                    { return nil }
func (s *stubImporter) CreateFolder(ctx context.Context, f *migrate.Folder) error { return nil }
func (s *stubImporter) CreateItem(ctx context.Context, item *migrate.Item) error  { return nil }
func (s *stubImporter) GetItems(ctx context.Context, f *migrate.Folder) (map[string]migrate.Existing, error) {
	return s.items, nil
}

func TestFetchItemListSkipsUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, calendarsPropfind)
		case "REPORT":
			w.WriteHeader(http.StatusMultiStatus)
			_, _ = io.WriteString(w, eventReport)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	d := buildDriver(t, srv)
	folder := &migrate.Folder{Fullname: "Personal Calendar/Work", Type: migrate.TypeEvent}

	// ev1 exists with the same DTSTAMP, ev2 with an older one.
	importer := &stubImporter{items: map[string]migrate.Existing{
		"ev1": {Href: "/dest/ev1.ics", DTStamp: "20260101T000000Z"},
		"ev2": {Href: "/dest/ev2.ics", DTStamp: "20250101T000000Z"},
	}}

	var items []migrate.Item
	err := d.FetchItemList(context.Background(), folder, func(set *migrate.ItemSet) error {
		items = append(items, set.Items...)
		return nil
	}, importer)
	assert.NoError(t, err)

	if assert.Len(t, items, 1) {
		assert.Equal(t, "/calendars/alice/cal-1/ev2.ics", items[0].ID)
		if assert.NotNil(t, items[0].Existing) {
			assert.Equal(t, "/dest/ev2.ics", items[0].Existing.Href)
		}
	}
}

func TestClientEscapedHref(t *testing.T) {
	var got []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", "secret")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	ctx := context.Background()

	// Hrefs reported by the server and object names run through PathEscape
	// are already escaped; the wire request must carry them verbatim.
	_, err = c.Get(ctx, "/cal/a%20b.ics")
	assert.NoError(t, err)

	err = c.Put(ctx, "/cal/"+url.PathEscape("100% done")+".ics", "text/calendar", strings.NewReader("x"))
	assert.NoError(t, err)

	assert.Equal(t, []string{"/cal/a%20b.ics", "/cal/100%25%20done.ics"}, got)
}

func TestObjectProp(t *testing.T) {
	data := "BEGIN:VCARD\r\nUID:abc-123\r\nREV:20260101T000000Z\r\nFN:Some One\r\nEND:VCARD\r\n"

	assert.Equal(t, "abc-123", objectProp(data, "UID"))
	assert.Equal(t, "20260101T000000Z", objectProp(data, "REV"))
	assert.Equal(t, "", objectProp(data, "DTSTAMP"))
	// A property that merely prefixes another name must not match.
	assert.Equal(t, "", objectProp("UIDX:nope\r\n", "UID"))
}
