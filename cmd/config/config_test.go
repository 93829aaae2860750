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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	def := DefaultConfig()

	assert.NotEmpty(t, def.QueueDatabase)
	assert.NotEmpty(t, def.ExportRoot)
	assert.Equal(t, "info", def.LogLevel)
	assert.Equal(t, "text", def.LogFormat)
	assert.Empty(t, def.Type)
	assert.False(t, def.Force)
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwpump.yml")
	err := os.WriteFile(path, []byte(`
queue_database: /var/lib/gwpump/queue.db
type: event,task
log_level: debug
debug: true
`), 0o600)
	assert.NoError(t, err)

	cfg := DefaultConfig()
	assert.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, "/var/lib/gwpump/queue.db", cfg.QueueDatabase)
	assert.Equal(t, "event,task", cfg.Type)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug)
}

// Values set on the command line must survive the file merge.
func TestMergeFileFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwpump.yml")
	err := os.WriteFile(path, []byte("type: mail\nlog_level: warning\n"), 0o600)
	assert.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Type = "event"
	cfg.LogLevel = "trace"

	assert.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, "event", cfg.Type)
	assert.Equal(t, "trace", cfg.LogLevel)
}

func TestDrivers(t *testing.T) {
	cfg := DefaultConfig()
	drivers := cfg.Drivers()

	for _, scheme := range []string{"imap", "imaps", "dav", "davs", "ews"} {
		assert.Contains(t, drivers, scheme)
	}
}
