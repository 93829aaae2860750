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
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/queue"
)

// Config wires an Engine. Everything is injected; the engine holds no
// process-global state.
type Config struct {
	Queue      *queue.Store
	Dispatcher Dispatcher
	// Drivers maps a URI scheme to the factory building its driver.
	Drivers map[string]DriverFactory
	// ExportRoot is the staging directory for fetched item payloads.
	ExportRoot string
	// PollInterval is the sleep between progress refreshes when attaching
	// to an existing queue. Defaults to one second.
	PollInterval time.Duration
}

// Engine orchestrates a migration: it owns the queue record, enumerates
// folders through the source exporter, and dispatches per-folder and
// per-item jobs. Jobs re-hydrate the engine's state from the queue record,
// so they may run in any process.
type Engine struct {
	queue        *queue.Store
	dispatcher   Dispatcher
	drivers      map[string]DriverFactory
	exportRoot   string
	pollInterval time.Duration
}

func NewEngine(cfg *Config) *Engine {
	e := &Engine{
		queue:        cfg.Queue,
		dispatcher:   cfg.Dispatcher,
		drivers:      cfg.Drivers,
		exportRoot:   cfg.ExportRoot,
		pollInterval: cfg.PollInterval,
	}

	if e.pollInterval == 0 {
		e.pollInterval = time.Second
	}

	if e.dispatcher == nil {
		e.dispatcher = &SyncDispatcher{Engine: e}
	}

	return e
}

// QueueID computes the deterministic migration fingerprint from the two
// verbatim credential strings and the requested type list.
func QueueID(source, destination *account.Account, typeList string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(source.String()+destination.String()+typeList)))
}

// Migrate runs (or attaches to) the migration identified by source,
// destination and opts.Type. When a queue record for that identity already
// exists and has started jobs, Migrate only observes progress until the
// record drains, dispatching nothing.
func (e *Engine) Migrate(ctx context.Context, source, destination *account.Account, opts Options) error {
	queueID := QueueID(source, destination, opts.Type)

	logger := log.WithFields(log.Fields{
		"queue_id": queueID,
		"source":   source.Host,
		"dest":     destination.Host,
	})
	logger.Info("engine_migrate_start")

	rec, err := e.queue.Find(ctx, queueID)
	if err != nil {
		return err
	}

	if rec != nil {
		// A record that never started any job is a leftover from a failed
		// run; replace it.
		if rec.JobsStarted == 0 || opts.Force {
			logger.WithField("force", opts.Force).Info("engine_queue_discarded")
			if err := e.queue.Delete(ctx, queueID); err != nil {
				return err
			}
		} else {
			return e.waitForQueue(ctx, rec, opts.Stdout)
		}
	}

	types, err := ParseTypes(opts.Type)
	if err != nil {
		return err
	}

	importer, err := e.initImporter(destination)
	if err != nil {
		return err
	}
	defer closeDriver(importer)
	if err := importer.Authenticate(ctx); err != nil {
		return &AuthenticationError{Account: destination.Host, Err: err}
	}

	exporter, err := e.initExporter(source)
	if err != nil {
		return err
	}
	defer closeDriver(exporter)
	if err := exporter.Authenticate(ctx); err != nil {
		return &AuthenticationError{Account: source.Host, Err: err}
	}

	logger.Debug("engine_credentials_verified")

	data := queue.Data{
		Source:      source.String(),
		Destination: destination.String(),
		Options:     queue.Options{Type: opts.Type, Force: opts.Force},
	}
	if stater, ok := exporter.(SessionStater); ok {
		data.Session = stater.SessionState()
	}

	if _, err := e.queue.Create(ctx, queueID, data); err != nil {
		return err
	}

	folders, err := exporter.GetFolders(ctx, types)
	if err != nil {
		return err
	}

	for i := range folders {
		folders[i].QueueID = queueID
		folders[i].Location = e.folderLocation(source, &folders[i])
	}

	// Started is bumped before dispatch so that jobs_finished can never
	// overtake jobs_started, even with an inline dispatcher.
	if err := e.queue.BumpJobsStarted(ctx, queueID, uint(len(folders))); err != nil {
		return err
	}

	for _, folder := range folders {
		logger.WithFields(log.Fields{
			"folder": folder.Fullname,
			"type":   folder.Type,
		}).Info("engine_folder_dispatch")

		if err := e.dispatcher.DispatchFolder(ctx, FolderJob{QueueID: queueID, Folder: folder}); err != nil {
			return err
		}
	}

	logger.WithField("folders", len(folders)).Info("engine_migrate_dispatched")
	return nil
}

// ProcessFolder handles one FolderJob: create the destination folder, list
// the source items (skipping ones the destination already has), and
// dispatch one ItemJob per remaining item.
func (e *Engine) ProcessFolder(ctx context.Context, job FolderJob) error {
	env, err := e.envFromQueue(ctx, job.QueueID)
	if err != nil {
		return err
	}
	defer env.Close()

	folder := job.Folder

	logger := log.WithFields(log.Fields{
		"queue_id": job.QueueID,
		"folder":   folder.Fullname,
	})
	logger.Info("engine_process_folder")

	if err := env.importer.CreateFolder(ctx, &folder); err != nil {
		return err
	}

	// A source folder known to be empty needs no list pass.
	if folder.Total != 0 {
		err = env.exporter.FetchItemList(ctx, &folder, func(set *ItemSet) error {
			if err := e.queue.BumpJobsStarted(ctx, job.QueueID, uint(len(set.Items))); err != nil {
				return err
			}
			for _, item := range set.Items {
				job := ItemJob{QueueID: job.QueueID, Folder: folder, ID: item.ID, Existing: item.Existing}
				if err := e.dispatcher.DispatchItem(ctx, job); err != nil {
					return err
				}
			}
			return nil
		}, env.importer)
		if err != nil {
			return err
		}
	}

	return e.queue.BumpJobsFinished(ctx, job.QueueID, 1)
}

// ProcessItem handles one ItemJob: fetch the payload from the source and
// hand it to the destination. An exporter producing no payload means the
// item needs no transfer, which is not a failure.
func (e *Engine) ProcessItem(ctx context.Context, job ItemJob) error {
	env, err := e.envFromQueue(ctx, job.QueueID)
	if err != nil {
		return err
	}
	defer env.Close()

	item := Item{ID: job.ID, Folder: &job.Folder, Existing: job.Existing}

	log.WithFields(log.Fields{
		"queue_id": job.QueueID,
		"folder":   job.Folder.Fullname,
		"item":     job.ID,
	}).Debug("engine_process_item")

	if err := env.exporter.FetchItem(ctx, &item); err != nil {
		return err
	}

	if err := env.importer.CreateItem(ctx, &item); err != nil {
		return err
	}

	if item.Filename != "" {
		if err := os.Remove(item.Filename); err != nil {
			log.WithError(err).WithField("file", item.Filename).Warn("engine_stage_cleanup_failed")
		}
	}

	return e.queue.BumpJobsFinished(ctx, job.QueueID, 1)
}

type jobEnv struct {
	record      *queue.Record
	source      *account.Account
	destination *account.Account
	exporter    Exporter
	importer    Importer
}

// Close disconnects both drivers. Drivers without persistent connections
// ignore it.
func (env *jobEnv) Close() {
	closeDriver(env.exporter)
	closeDriver(env.importer)
}

func closeDriver(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Debug("engine_driver_close_failed")
		}
	}
}

// envFromQueue reconstructs the migration environment from the durable
// record. Job payloads never carry live driver objects, so this runs at
// the start of every job, possibly in a different process than the
// dispatcher.
func (e *Engine) envFromQueue(ctx context.Context, queueID string) (*jobEnv, error) {
	rec, err := e.queue.Find(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("queue record %s not found", queueID)
	}

	data, err := rec.Data()
	if err != nil {
		return nil, err
	}

	source, err := account.Parse(data.Source)
	if err != nil {
		return nil, err
	}
	destination, err := account.Parse(data.Destination)
	if err != nil {
		return nil, err
	}

	exporter, err := e.initExporter(source)
	if err != nil {
		return nil, err
	}
	if restorer, ok := exporter.(SessionRestorer); ok && data.Session != nil {
		restorer.RestoreSession(data.Session)
	}

	importer, err := e.initImporter(destination)
	if err != nil {
		closeDriver(exporter)
		return nil, err
	}

	return &jobEnv{
		record:      rec,
		source:      source,
		destination: destination,
		exporter:    exporter,
		importer:    importer,
	}, nil
}

func (e *Engine) factoryFor(acct *account.Account) (DriverFactory, error) {
	factory, ok := e.drivers[acct.Scheme]
	if !ok {
		return nil, &UnsupportedTypeError{Type: acct.Scheme}
	}
	return factory, nil
}

func (e *Engine) initExporter(acct *account.Account) (Exporter, error) {
	factory, err := e.factoryFor(acct)
	if err != nil {
		return nil, err
	}
	return factory.NewExporter(acct)
}

func (e *Engine) initImporter(acct *account.Account) (Importer, error) {
	factory, err := e.factoryFor(acct)
	if err != nil {
		return nil, err
	}
	return factory.NewImporter(acct)
}

// waitForQueue observes an already-running migration until every started
// job has finished. It performs no work itself.
func (e *Engine) waitForQueue(ctx context.Context, rec *queue.Record, stdout bool) error {
	var bar *progressbar.ProgressBar
	if stdout {
		bar = progressbar.NewOptions64(int64(rec.JobsStarted),
			progressbar.OptionSetDescription("migrating"),
			progressbar.OptionSetPredictTime(false),
		)
	}

	for {
		if stdout {
			bar.ChangeMax64(int64(rec.JobsStarted))
			_ = bar.Set64(int64(rec.JobsFinished))
		} else {
			log.WithFields(log.Fields{
				"queue_id":      rec.ID,
				"jobs_started":  rec.JobsStarted,
				"jobs_finished": rec.JobsFinished,
			}).Info("engine_progress")
		}

		if rec.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}

		if err := e.queue.Refresh(ctx, rec); err != nil {
			return err
		}
	}
}

func (e *Engine) folderLocation(source *account.Account, folder *Folder) string {
	owner := source.Email
	if owner == "" {
		owner = source.Username
	}
	return filepath.Join(e.exportRoot, owner, filepath.FromSlash(folder.Fullname))
}
