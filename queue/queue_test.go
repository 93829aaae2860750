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

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateFindDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Find(ctx, "deadbeef")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	data := Data{
		Source:      "imap://a:b@src",
		Destination: "imap://c:d@dst",
		Options:     Options{Type: "mail"},
		Session:     map[string]string{"ews_url": "https://ews.example.com/EWS/Exchange.asmx"},
	}

	_, err = s.Create(ctx, "deadbeef", data)
	assert.NoError(t, err)

	rec, err = s.Find(ctx, "deadbeef")
	assert.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Equal(t, uint(0), rec.JobsStarted)
	assert.Equal(t, uint(0), rec.JobsFinished)

	got, err := rec.Data()
	assert.NoError(t, err)
	assert.Equal(t, data, got)

	// A second create for the same identity must fail, not overwrite.
	_, err = s.Create(ctx, "deadbeef", data)
	assert.Error(t, err)

	assert.NoError(t, s.Delete(ctx, "deadbeef"))
	rec, err = s.Find(ctx, "deadbeef")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBumpAndRefresh(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Create(ctx, "q1", Data{})
	assert.NoError(t, err)

	assert.NoError(t, s.BumpJobsStarted(ctx, "q1", 3))
	assert.NoError(t, s.BumpJobsFinished(ctx, "q1", 1))
	assert.NoError(t, s.BumpJobsFinished(ctx, "q1", 2))

	assert.NoError(t, s.Refresh(ctx, rec))
	assert.Equal(t, uint(3), rec.JobsStarted)
	assert.Equal(t, uint(3), rec.JobsFinished)
	assert.True(t, rec.Done())
}

// Concurrent bumps must neither lose updates nor let jobs_finished
// overtake jobs_started.
func TestConcurrentBumps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Create(ctx, "q1", Data{})
	assert.NoError(t, err)

	const workers = 20
	const perWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, s.BumpJobsStarted(ctx, "q1", 2))
				assert.NoError(t, s.BumpJobsFinished(ctx, "q1", 1))
				assert.NoError(t, s.BumpJobsFinished(ctx, "q1", 1))
			}
		}()
	}
	wg.Wait()

	rec, err := s.Find(ctx, "q1")
	assert.NoError(t, err)
	assert.Equal(t, uint(workers*perWorker*2), rec.JobsStarted)
	assert.Equal(t, uint(workers*perWorker*2), rec.JobsFinished)
}

// Bumps against a deleted record are silently swallowed; this is the
// documented behaviour of a force-restarted migration.
func TestBumpAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Create(ctx, "q1", Data{})
	assert.NoError(t, err)
	assert.NoError(t, s.Delete(ctx, "q1"))

	assert.NoError(t, s.BumpJobsFinished(ctx, "q1", 1))

	rec, err := s.Find(ctx, "q1")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}
