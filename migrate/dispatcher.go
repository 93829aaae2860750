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

import "context"

// SyncDispatcher runs jobs inline in the dispatching process. It is the
// default when no external task queue runtime is wired in; jobs still go
// through the full re-hydration path, so behaviour matches asynchronous
// execution apart from concurrency.
type SyncDispatcher struct {
	Engine *Engine
}

func (d *SyncDispatcher) DispatchFolder(ctx context.Context, job FolderJob) error {
	return d.Engine.ProcessFolder(ctx, job)
}

func (d *SyncDispatcher) DispatchItem(ctx context.Context, job ItemJob) error {
	return d.Engine.ProcessItem(ctx, job)
}
