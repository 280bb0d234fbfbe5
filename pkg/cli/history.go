package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/combo/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	historyLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of runs returned",
		Value: data.RunListLimitDefault,
	}

	runIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "Run id",
		Required: true,
	}

	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "Do not ask for confirmation",
	}

	historyCmd = &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "List saved runs",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List the most recent runs",
				Action:  cmdHistoryList,
				Flags: []cli.Flag{
					historyLimitFlag,
				},
			},
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Show a run with its top combinations",
				Action:  cmdHistoryShow,
				Flags: []cli.Flag{
					runIDFlag,
				},
			},
			{
				Name:    "delete",
				Aliases: []string{"d"},
				Usage:   "Delete a run",
				Action:  cmdHistoryDelete,
				Flags: []cli.Flag{
					runIDFlag,
				},
			},
			{
				Name:   "reset",
				Usage:  "Delete all saved runs",
				Action: cmdHistoryReset,
				Flags: []cli.Flag{
					forceFlag,
				},
			},
		},
	}
)

func cmdHistoryList(c *cli.Context) error {
	db, err := getDB(c)
	if err != nil {
		return err
	}

	list, err := data.ListRuns(db, c.Int(historyLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	cfg := getConfig(c)
	if cfg.Format != formatText {
		return encode(c.App.Writer, cfg.Format, list)
	}

	for _, r := range list {
		fmt.Fprintf(c.App.Writer, "%s  %s  %-10s  %-10s  top=%d evaluated=%d/%d best=%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Name, r.Mode,
			r.Top, r.Evaluated, r.Total, formatScore(r.Summary.Max))
	}
	return nil
}

func cmdHistoryShow(c *cli.Context) error {
	db, err := getDB(c)
	if err != nil {
		return err
	}

	r, err := data.GetRun(db, c.String(runIDFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	cfg := getConfig(c)
	if cfg.Format != formatText {
		return encode(c.App.Writer, cfg.Format, r)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Run: %s (%s)\n", r.ID, r.Name)
	fmt.Fprintf(w, "Mode: %s", r.Mode)
	if r.Strategy != "" {
		fmt.Fprintf(w, " (%s, %s%%, seed %d)", r.Strategy, formatScore(r.Percentage), r.Seed)
	}
	fmt.Fprintf(w, "\nEvaluated: %d of %d\n", r.Evaluated, r.Total)
	fmt.Fprintf(w, "Top %d combinations:\n", r.Top)
	for _, res := range r.Results {
		fmt.Fprintf(w, "Combination: %s, Score: %s\n", res.Combination, formatScore(res.Score))
	}
	return nil
}

func cmdHistoryDelete(c *cli.Context) error {
	db, err := getDB(c)
	if err != nil {
		return err
	}

	id := c.String(runIDFlag.Name)
	if err := data.DeleteRun(db, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	slog.Info("run deleted", "id", id)
	return nil
}

func cmdHistoryReset(c *cli.Context) error {
	cfg := getConfig(c)

	if !c.Bool(forceFlag.Name) {
		fmt.Fprintf(c.App.Writer, "This will permanently delete all runs in %s\n", cfg.DBPath)
		fmt.Fprint(c.App.Writer, "Are you sure? [y/N]: ")

		reader := bufio.NewReader(c.App.Reader)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	db, err := getDB(c)
	if err != nil {
		return err
	}

	n, err := data.ResetRuns(db)
	if err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}

	slog.Info("history reset", "runs", n, "path", cfg.DBPath)
	return nil
}
