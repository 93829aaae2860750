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

package queue

import "encoding/json"

// Options is the subset of migration options persisted with a record. The
// console routing flag is deliberately absent; a job has no console.
type Options struct {
	Type  string `json:"type"`
	Force bool   `json:"force,omitempty"`
}

// Data is the opaque serialized context a worker needs to reconstruct a
// migration in a different process: the two credential strings, the
// options, and any driver session state (e.g. a discovered EWS endpoint).
type Data struct {
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Options     Options           `json:"options"`
	Session     map[string]string `json:"session,omitempty"`
}

// Record is the durable progress state of one migration, keyed by the
// deterministic fingerprint of source, destination, and type set.
// JobsFinished never exceeds JobsStarted except transiently inside the
// store's atomic updates.
type Record struct {
	ID           string `db:"id"`
	JobsStarted  uint   `db:"jobs_started"`
	JobsFinished uint   `db:"jobs_finished"`
	RawData      []byte `db:"data"`
}

// Data deserializes the record's migration context.
func (r *Record) Data() (Data, error) {
	var d Data
	err := json.Unmarshal(r.RawData, &d)
	return d, err
}

// Done reports whether every started job has finished.
func (r *Record) Done() bool {
	return r.JobsStarted == r.JobsFinished
}
