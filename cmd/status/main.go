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

package status

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/gwpump/gwpump/account"
	"github.com/gwpump/gwpump/cmd/config"
	"github.com/gwpump/gwpump/migrate"
)

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.CliConfig{}
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show the progress of a migration",
		ArgsUsage: "SOURCE DESTINATION",
		Flags:     cfg.Parameters(),
		Action:    func(c *cli.Context) error { return run(c, cfg) },
	})
	return app
}

func run(c *cli.Context, cfg *config.CliConfig) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected exactly two arguments, source and destination")
	}

	if cfg.ConfigFile != "" {
		if err := cfg.MergeFile(cfg.ConfigFile); err != nil {
			return err
		}
	}

	source, err := account.Parse(c.Args().Get(0))
	if err != nil {
		return err
	}
	destination, err := account.Parse(c.Args().Get(1))
	if err != nil {
		return err
	}

	store, err := cfg.OpenQueue()
	if err != nil {
		return err
	}
	defer store.Close()

	queueID := migrate.QueueID(source, destination, cfg.Type)

	rec, err := store.Find(context.Background(), queueID)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("no migration queue found for %s\n", queueID)
		return nil
	}

	state := "in progress"
	if rec.Done() {
		state = "finished"
	}

	fmt.Printf("queue:         %s\n", rec.ID)
	fmt.Printf("jobs started:  %d\n", rec.JobsStarted)
	fmt.Printf("jobs finished: %d\n", rec.JobsFinished)
	fmt.Printf("state:         %s\n", state)

	return nil
}
