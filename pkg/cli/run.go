package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/mchmarny/combo/pkg/config"
	"github.com/mchmarny/combo/pkg/data"
	"github.com/mchmarny/combo/pkg/net"
	"github.com/mchmarny/combo/pkg/sim"
	"github.com/urfave/cli/v2"
)

const (
	trialCountDefault = 10
)

var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path or http(s) URL of the definition file (yaml, json or toml)",
		Required: true,
	}

	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token used when the definition is fetched from a URL (default: saved token)",
		EnvVars: []string{"COMBO_TOKEN"},
	}

	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: fmt.Sprintf("Number of top combinations to return (default: definition or %d)", sim.TopDefault),
	}

	sampleFlag = &cli.BoolFlag{
		Name:  "sample",
		Usage: "Score a random sample instead of every combination",
	}

	exhaustiveFlag = &cli.BoolFlag{
		Name:  "exhaustive",
		Usage: "Score every combination even if the definition enables sampling",
	}

	percentFlag = &cli.Float64Flag{
		Name:  "percent",
		Usage: "Percentage of all combinations to sample, values above 100 sample everything",
	}

	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Seed for the sampling random source (optional, random by default)",
	}

	strategyFlag = &cli.StringFlag{
		Name:  "strategy",
		Usage: fmt.Sprintf("Sampling strategy %v", sim.Strategies),
	}

	saveFlag = &cli.BoolFlag{
		Name:  "save",
		Usage: "Save the run to the local history database",
	}

	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Run name stored in history (default: definition name)",
	}

	runCmd = &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Score combinations and print the top ones",
		UsageText: `combo run -c example.yaml                         # use the definition as is
   combo run -c example.yaml --exhaustive --top 3     # score everything, keep 3
   combo run -c example.yaml --sample --percent 25 --seed 7 --save`,
		Action: cmdRun,
		Flags: []cli.Flag{
			configFileFlag,
			tokenFlag,
			topFlag,
			sampleFlag,
			exhaustiveFlag,
			percentFlag,
			seedFlag,
			strategyFlag,
			saveFlag,
			nameFlag,
		},
	}

	trialCountFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "Number of sampled trials",
		Value: trialCountDefault,
	}

	parallelFlag = &cli.IntFlag{
		Name:  "parallel",
		Usage: "Maximum concurrent trials (default: number of CPUs)",
	}

	compareFlag = &cli.BoolFlag{
		Name:  "compare",
		Usage: "Compare trial results with the exhaustive top combinations",
		Value: true,
	}

	trialsCmd = &cli.Command{
		Name:    "trials",
		Aliases: []string{"t"},
		Usage:   "Repeat sampled runs and report how stable the top combinations are",
		Action:  cmdTrials,
		Flags: []cli.Flag{
			configFileFlag,
			tokenFlag,
			trialCountFlag,
			parallelFlag,
			compareFlag,
			topFlag,
			percentFlag,
			seedFlag,
			strategyFlag,
		},
	}
)

// RunOutput is the structured output of the run command.
type RunOutput struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	sim.Report `yaml:",inline"`
}

// loadConfig reads the definition file and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Definition, sim.Config, error) {
	src := c.String(configFileFlag.Name)
	token := c.String(tokenFlag.Name)
	if token == "" && net.IsURL(src) {
		token = getToken(c)
	}

	def, err := config.Read(c.Context, src, token)
	if err != nil {
		return nil, sim.Config{}, fmt.Errorf("failed to load definition: %w", err)
	}

	cfg := def.SimConfig()
	if c.IsSet(topFlag.Name) {
		cfg.Top = c.Int(topFlag.Name)
	}
	if c.IsSet(percentFlag.Name) {
		cfg.Sampling.Percentage = c.Float64(percentFlag.Name)
	}
	if c.IsSet(seedFlag.Name) {
		seed := c.Uint64(seedFlag.Name)
		cfg.Sampling.Seed = &seed
	}
	if c.IsSet(strategyFlag.Name) {
		cfg.Sampling.Strategy = sim.Strategy(c.String(strategyFlag.Name))
	}

	return def, cfg, nil
}

func cmdRun(c *cli.Context) error {
	if c.Bool(sampleFlag.Name) && c.Bool(exhaustiveFlag.Name) {
		return fmt.Errorf("--%s and --%s are mutually exclusive", sampleFlag.Name, exhaustiveFlag.Name)
	}

	def, cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	switch {
	case c.Bool(sampleFlag.Name):
		cfg.Sampling.Enabled = true
	case c.Bool(exhaustiveFlag.Name):
		cfg.Sampling.Enabled = false
	}

	s, err := sim.New(cfg)
	if err != nil {
		return err
	}

	rep, err := s.Run(c.Context)
	if err != nil {
		return fmt.Errorf("failed to run simulation: %w", err)
	}

	out := &RunOutput{Report: *rep, Name: def.Name}
	if c.IsSet(nameFlag.Name) {
		out.Name = c.String(nameFlag.Name)
	}

	if c.Bool(saveFlag.Name) {
		id, err := saveRun(c, out.Name, def, s.Config(), rep)
		if err != nil {
			return err
		}
		out.ID = id
	}

	appCfg := getConfig(c)
	if appCfg.Format != formatText {
		return encode(c.App.Writer, appCfg.Format, out)
	}

	printTop(c.App.Writer, rep.Top, s.Config().Top)
	if out.ID != "" {
		fmt.Fprintf(c.App.Writer, "Saved run: %s\n", out.ID)
	}
	return nil
}

func saveRun(c *cli.Context, name string, def *config.Definition, cfg sim.Config, rep *sim.Report) (string, error) {
	db, err := getDB(c)
	if err != nil {
		return "", err
	}

	b, err := config.Encode(def, config.FormatYAML)
	if err != nil {
		return "", fmt.Errorf("failed to encode definition: %w", err)
	}

	r := data.NewRun(name, string(b), cfg, rep)
	if err := data.SaveRun(db, r); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	slog.Debug("run saved", "id", r.ID, "path", getConfig(c).DBPath)
	return r.ID, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func printTop(w io.Writer, top []sim.ScoredCombination, k int) {
	fmt.Fprintf(w, "Top %d combinations:\n", k)
	for _, r := range top {
		fmt.Fprintf(w, "Combination: %s, Score: %s\n", r.Combination, formatScore(r.Score))
	}
}

func cmdTrials(c *cli.Context) error {
	_, cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	tr, err := sim.RunTrials(c.Context, cfg, sim.TrialOptions{
		Count:             c.Int(trialCountFlag.Name),
		Parallel:          c.Int(parallelFlag.Name),
		CompareExhaustive: c.Bool(compareFlag.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to run trials: %w", err)
	}

	appCfg := getConfig(c)
	if appCfg.Format != formatText {
		return encode(c.App.Writer, appCfg.Format, tr)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Trials: %d\n", tr.Trials)
	fmt.Fprintf(w, "Best score: mean %s, stddev %s\n", formatScore(tr.BestScoreMean), formatScore(tr.BestScoreStd))
	if c.Bool(compareFlag.Name) {
		fmt.Fprintf(w, "Agreement with exhaustive top %d: %.1f%%\n", cfg.Top, tr.Agreement*100)
	}
	fmt.Fprintln(w, "Top combination frequency:")
	for _, f := range tr.Frequencies {
		fmt.Fprintf(w, "  %d/%d %s, Score: %s\n", f.Count, tr.Trials, f.Combination, formatScore(f.Score))
	}
	return nil
}
