package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = appName
	keyringUser    = "definition_token"
	tokenFileName  = "token"
	tokenFileMode  = 0600
)

var (
	tokenValueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "Token value (optional, read from stdin when not set)",
	}

	tokenCmd = &cli.Command{
		Name:            "token",
		HideHelpCommand: true,
		Usage:           "Manage the bearer token used to fetch definitions from URLs",
		Subcommands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "Save the token to the OS keychain",
				Action: cmdTokenSet,
				Flags: []cli.Flag{
					tokenValueFlag,
				},
			},
			{
				Name:   "clear",
				Usage:  "Remove the saved token",
				Action: cmdTokenClear,
			},
		},
	}
)

func cmdTokenSet(c *cli.Context) error {
	token := c.String(tokenValueFlag.Name)
	if token == "" {
		fmt.Fprint(c.App.Writer, "Token: ")
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading user input: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("token is empty")
	}

	if err := saveToken(c, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "Token saved")
	return nil
}

func cmdTokenClear(c *cli.Context) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("error deleting token from keychain", "error", err)
	}

	if err := os.Remove(tokenFilePath(c)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "Token cleared")
	return nil
}

// tokenFilePath is the fallback location when the keychain is unavailable.
func tokenFilePath(c *cli.Context) string {
	return filepath.Join(filepath.Dir(getConfig(c).DBPath), tokenFileName)
}

func saveToken(c *cli.Context, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(tokenFilePath(c), []byte(token), tokenFileMode)
	}

	os.Remove(tokenFilePath(c))
	return nil
}

// getToken returns the saved token or an empty string when none is saved.
func getToken(c *cli.Context) string {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token
	}

	b, err := os.ReadFile(tokenFilePath(c))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("error reading token file", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(b))
}
