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

package migrate

import (
	"context"
	"strings"
	"time"

	"github.com/gwpump/gwpump/account"
)

// FolderType is the closed set of object types the engine can migrate.
type FolderType string

const (
	TypeEvent   FolderType = "event"
	TypeTask    FolderType = "task"
	TypeContact FolderType = "contact"
	TypeGroup   FolderType = "group"
	TypeMail    FolderType = "mail"
)

// ParseTypes splits a comma-separated type list ("event,task") into folder
// types. An empty input selects all types.
func ParseTypes(s string) ([]FolderType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var types []FolderType
	for _, part := range strings.Split(s, ",") {
		switch t := FolderType(strings.ToLower(strings.TrimSpace(part))); t {
		case TypeEvent, TypeTask, TypeContact, TypeGroup, TypeMail:
			types = append(types, t)
		default:
			return nil, &UnsupportedTypeError{Type: string(t)}
		}
	}

	return types, nil
}

// HasType reports whether types is empty (meaning "everything") or
// contains t.
func HasType(types []FolderType, t FolderType) bool {
	if len(types) == 0 {
		return true
	}
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

// Folder identifies one source collection and where its items are staged.
// Fullname uniquely identifies the folder within one account and type;
// hierarchical names use '/' separators.
type Folder struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name"`
	Fullname string     `json:"fullname"`
	Type     FolderType `json:"type"`
	// Total is the item count reported by the source, or -1 when unknown.
	Total    int    `json:"total"`
	Location string `json:"location"`
	QueueID  string `json:"queue_id"`
}

// Existing describes an item already present at the destination, keyed by
// its stable native id. Which fields are set depends on the driver.
type Existing struct {
	UID       uint32    `json:"uid,omitempty"`
	Href      string    `json:"href,omitempty"`
	Flags     []string  `json:"flags,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Size      uint32    `json:"size,omitempty"`
	Rev       string    `json:"rev,omitempty"`
	DTStamp   string    `json:"dtstamp,omitempty"`
}

// Item is one unit of migration work. Items live for a single job; the only
// thing that survives them is the staged payload file and the queue counters.
type Item struct {
	ID       string    `json:"id"`
	Folder   *Folder   `json:"folder"`
	Existing *Existing `json:"existing,omitempty"`

	// Set by the exporter's FetchItem.
	Filename     string    `json:"-"`
	Flags        []string  `json:"-"`
	InternalDate time.Time `json:"-"`
}

// ItemSet is a bounded batch of items produced by FetchItemList so that
// neither memory use nor job payloads grow with folder size.
type ItemSet struct {
	Items []Item
}

// Exporter reads folders and items from the source account.
type Exporter interface {
	Authenticate(ctx context.Context) error
	GetFolders(ctx context.Context, types []FolderType) ([]Folder, error)
	FetchItemList(ctx context.Context, folder *Folder, fn func(set *ItemSet) error, importer Importer) error
	FetchItem(ctx context.Context, item *Item) error
}

// Importer writes folders and items to the destination account.
type Importer interface {
	Authenticate(ctx context.Context) error
	CreateFolder(ctx context.Context, folder *Folder) error
	CreateItem(ctx context.Context, item *Item) error
	GetItems(ctx context.Context, folder *Folder) (map[string]Existing, error)
}

// DriverFactory builds protocol drivers for one URI scheme. A driver may
// support only one direction; the factory returns an error for the other.
type DriverFactory interface {
	NewExporter(acct *account.Account) (Exporter, error)
	NewImporter(acct *account.Account) (Importer, error)
}

// SessionStater is implemented by exporters whose session setup is expensive
// to rediscover (EWS autodiscovery). Its state is persisted in the queue
// record and handed back through SessionRestorer inside jobs.
type SessionStater interface {
	SessionState() map[string]string
}

// SessionRestorer accepts previously persisted session state.
type SessionRestorer interface {
	RestoreSession(state map[string]string)
}

// FolderJob is the per-folder unit of asynchronous work. It carries no live
// objects; workers re-derive everything from the queue record.
type FolderJob struct {
	QueueID string `json:"queue_id"`
	Folder  Folder `json:"folder"`
}

// ItemJob is the per-item unit of asynchronous work.
type ItemJob struct {
	QueueID  string    `json:"queue_id"`
	Folder   Folder    `json:"folder"`
	ID       string    `json:"id"`
	Existing *Existing `json:"existing,omitempty"`
}

// Dispatcher hands jobs to the task queue runtime. Scheduling, retries and
// backoff are entirely the runtime's concern.
type Dispatcher interface {
	DispatchFolder(ctx context.Context, job FolderJob) error
	DispatchItem(ctx context.Context, job ItemJob) error
}

// Options control a single Migrate call.
type Options struct {
	// Type is the raw comma-separated folder type list. It participates in
	// the migration fingerprint, so it is kept verbatim.
	Type string
	// Force discards an existing queue record for the same fingerprint.
	Force bool
	// Stdout routes progress to the console instead of the structured log.
	Stdout bool
}
