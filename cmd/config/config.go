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
	"crypto/tls"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"github.com/gwpump/gwpump/dav"
	"github.com/gwpump/gwpump/ews"
	"github.com/gwpump/gwpump/imap"
	"github.com/gwpump/gwpump/imap/client"
	"github.com/gwpump/gwpump/migrate"
	"github.com/gwpump/gwpump/queue"
)

type CliConfig struct {
	QueueDatabase string `yaml:"queue_database"`
	ExportRoot    string `yaml:"export_root"`
	Type          string `yaml:"type"`
	Force         bool   `yaml:"-"`
	Stdout        bool   `yaml:"stdout"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	Debug         bool   `yaml:"debug"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ConfigFile    string `yaml:"-"`
}

func DefaultConfig() CliConfig {
	return CliConfig{
		QueueDatabase: filepath.Join(os.TempDir(), "gwpump", "queue.db"),
		ExportRoot:    filepath.Join(os.TempDir(), "gwpump", "export"),
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func (cfg *CliConfig) Parameters() []cli.Flag {
	def := DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "yaml configuration file",
			EnvVars:     []string{"GWPUMP_CONFIG"},
			Destination: &cfg.ConfigFile,
		},
		&cli.StringFlag{
			Name:        "queue-database",
			Usage:       "path to the queue database",
			EnvVars:     []string{"GWPUMP_QUEUE_DATABASE"},
			Destination: &cfg.QueueDatabase,
			Value:       def.QueueDatabase,
		},
		&cli.StringFlag{
			Name:        "export-root",
			Usage:       "staging directory for fetched items",
			EnvVars:     []string{"GWPUMP_EXPORT_ROOT"},
			Destination: &cfg.ExportRoot,
			Value:       def.ExportRoot,
		},
		&cli.StringFlag{
			Name:        "type",
			Usage:       "folder types to migrate (event,task,contact,group,mail)",
			EnvVars:     []string{"GWPUMP_TYPE"},
			Destination: &cfg.Type,
		},
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "discard an existing migration queue and start over",
			EnvVars:     []string{"GWPUMP_FORCE"},
			Destination: &cfg.Force,
		},
		&cli.BoolFlag{
			Name:        "stdout",
			Usage:       "print a progress bar instead of structured logs",
			EnvVars:     []string{"GWPUMP_STDOUT"},
			Destination: &cfg.Stdout,
		},
		&cli.BoolFlag{
			Name:        "tls-skip-verify",
			Usage:       "skip tls verification",
			EnvVars:     []string{"GWPUMP_TLS_SKIP_VERIFY"},
			Destination: &cfg.TLSSkipVerify,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "display protocol debug info",
			EnvVars:     []string{"GWPUMP_DEBUG"},
			Destination: &cfg.Debug,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"GWPUMP_LOG_LEVEL"},
			Destination: &cfg.LogLevel,
			Value:       def.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"GWPUMP_LOG_FORMAT"},
			Destination: &cfg.LogFormat,
			Value:       def.LogFormat,
		},
	}
}

// SetupLogging applies the log level and format. Unknown levels keep the
// default rather than failing the run.
func SetupLogging(cfg *CliConfig) {
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// MergeFile overlays values from a yaml file onto fields the command line
// left at their defaults. Flags always win.
func (cfg *CliConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file CliConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	def := DefaultConfig()
	if cfg.QueueDatabase == def.QueueDatabase && file.QueueDatabase != "" {
		cfg.QueueDatabase = file.QueueDatabase
	}
	if cfg.ExportRoot == def.ExportRoot && file.ExportRoot != "" {
		cfg.ExportRoot = file.ExportRoot
	}
	if cfg.Type == "" {
		cfg.Type = file.Type
	}
	if cfg.LogLevel == def.LogLevel && file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if cfg.LogFormat == def.LogFormat && file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	cfg.Stdout = cfg.Stdout || file.Stdout
	cfg.TLSSkipVerify = cfg.TLSSkipVerify || file.TLSSkipVerify
	cfg.Debug = cfg.Debug || file.Debug

	return nil
}

// Drivers builds the scheme-to-driver table every command shares.
func (cfg *CliConfig) Drivers() map[string]migrate.DriverFactory {
	var tlsConfig *tls.Config
	if cfg.TLSSkipVerify {
		// #nosec G402
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	imapFactory := imap.DriverFactory{
		Clients:   &client.Factory{},
		TLSConfig: tlsConfig,
		Debug:     cfg.Debug,
	}

	return map[string]migrate.DriverFactory{
		"imap":  imapFactory,
		"imaps": imapFactory,
		"dav":   dav.DriverFactory{},
		"davs":  dav.DriverFactory{},
		"ews":   ews.DriverFactory{},
	}
}

// OpenQueue opens (creating if necessary) the queue database.
func (cfg *CliConfig) OpenQueue() (*queue.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.QueueDatabase), 0o750); err != nil {
		return nil, err
	}
	return queue.Open(cfg.QueueDatabase)
}

// BuildEngine assembles the migration engine from the configuration.
func (cfg *CliConfig) BuildEngine() (*migrate.Engine, *queue.Store, error) {
	store, err := cfg.OpenQueue()
	if err != nil {
		return nil, nil, err
	}

	engine := migrate.NewEngine(&migrate.Config{
		Queue:      store,
		Drivers:    cfg.Drivers(),
		ExportRoot: cfg.ExportRoot,
	})

	return engine, store, nil
}
