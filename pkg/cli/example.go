package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/combo/pkg/config"
	"github.com/urfave/cli/v2"
)

var (
	exampleOutFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Write the example definition to this file (.yaml, .json or .toml)",
	}

	exampleCmd = &cli.Command{
		Name:    "example",
		Aliases: []string{"e"},
		Usage:   "Print or save an example definition to start from",
		Action:  cmdExample,
		Flags: []cli.Flag{
			exampleOutFlag,
		},
	}
)

func cmdExample(c *cli.Context) error {
	def := config.Example()

	if out := c.String(exampleOutFlag.Name); out != "" {
		if err := config.Save(out, def); err != nil {
			return fmt.Errorf("failed to save example: %w", err)
		}
		slog.Info("example definition saved", "path", out)
		return nil
	}

	f := config.FormatYAML
	if getConfig(c).Format == formatJSON {
		f = config.FormatJSON
	}

	b, err := config.Encode(def, f)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(b)
	return err
}
