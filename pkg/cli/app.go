package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/mchmarny/combo/pkg/data"
	"github.com/mchmarny/combo/pkg/logging"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "combo"
	dirMode      = 0700
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"

	logLevelDefault = "info"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	logLevelFlag = &urfave.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error]",
		Value: logLevelDefault,
	}

	dbFilePathFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: fmt.Sprintf("Path to the Sqlite database file (optional, defaults to $HOME/.%s/%s)", appName, data.DataFileName),
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [text, json, yaml]",
		Value: formatText,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(logLevelDefault)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	DBPath string
	Debug  bool
	Format string
	DB     *sql.DB
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

// getDB opens the history database on first use.
func getDB(c *urfave.Context) (*sql.DB, error) {
	cfg := getConfig(c)
	if cfg.DB != nil {
		return cfg.DB, nil
	}

	if err := data.Init(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	cfg.DB = db
	return db, nil
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Score combinations of weighted variables and rank the best ones",
		Flags: []urfave.Flag{
			debugFlag,
			logLevelFlag,
			dbFilePathFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			runCmd,
			trialsCmd,
			exampleCmd,
			historyCmd,
			tokenCmd,
		},
		Before: func(c *urfave.Context) error {
			level := c.String(logLevelFlag.Name)
			if c.Bool(debugFlag.Name) {
				level = "debug"
			}
			initLogging(level)

			f := c.String(formatFlag.Name)
			switch f {
			case formatJSON, formatText:
			case formatYAML, "yml":
				f = formatYAML
			default:
				return fmt.Errorf("unsupported output format: %s", f)
			}

			dbPath := c.String(dbFilePathFlag.Name)
			if dbPath == "" {
				dbPath = path.Join(getHomeDir(), data.DataFileName)
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				DBPath: dbPath,
				Debug:  c.Bool(debugFlag.Name),
				Format: f,
			}
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func initLogging(level string) {
	logging.SetDefaultCLILogger(level)
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	slog.Debug("home dir", "path", home)

	dirPath := filepath.Join(home, "."+appName)
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		err := os.Mkdir(dirPath, dirMode)
		if err != nil {
			slog.Debug("error creating dir", "path", dirPath, "home", home, "error", err)
			return home
		}
	}
	return dirPath
}

// encode writes v in the structured output format. Text output falls back to JSON.
func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
