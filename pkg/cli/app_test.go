package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/combo/pkg/config"
	"github.com/mchmarny/combo/pkg/data"
	"github.com/mchmarny/combo/pkg/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	initLogging("error")
	code := m.Run()
	os.Exit(code)
}

type testEnv struct {
	dir    string
	db     string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		db:     filepath.Join(dir, data.DataFileName),
		config: filepath.Join(dir, "example.yaml"),
	}
	require.NoError(t, config.Save(env.config, config.Example()))
	return env
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)

	full := append([]string{appName, "--log-level", "error", "--db", e.db}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestRun_ExhaustiveText(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "run", "-c", env.config, "--exhaustive")
	require.NoError(t, err)

	want := `Top 5 combinations:
Combination: (July, vacation, sun), Score: 21
Combination: (June, vacation, sun), Score: 17
Combination: (May, vacation, sun), Score: 14
Combination: (July, vacation, rain), Score: 11
Combination: (May, vacation, rain), Score: 7
`
	assert.Equal(t, want, out)
}

func TestRun_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "--format", "json", "run", "-c", env.config, "--exhaustive", "--top", "2")
	require.NoError(t, err)

	var got RunOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "vacation", got.Name)
	assert.Equal(t, sim.ModeExhaustive, got.Mode)
	assert.Equal(t, 12, got.Evaluated)
	require.Len(t, got.Top, 2)
	assert.Equal(t, 21.0, got.Top[0].Score)
}

func TestRun_SampledSeedReproducible(t *testing.T) {
	env := newTestEnv(t)

	args := []string{"--format", "yaml", "run", "-c", env.config, "--sample", "--percent", "50", "--seed", "17"}
	first, err := env.run(t, "", args...)
	require.NoError(t, err)
	second, err := env.run(t, "", args...)
	require.NoError(t, err)

	// duration differs between runs
	strip := func(s string) string {
		var lines []string
		for _, l := range strings.Split(s, "\n") {
			if !strings.HasPrefix(l, "duration:") {
				lines = append(lines, l)
			}
		}
		return strings.Join(lines, "\n")
	}
	assert.Equal(t, strip(first), strip(second))
	assert.Contains(t, first, "mode: sampling")
	assert.Contains(t, first, "evaluated: 6")
	assert.Contains(t, first, "seed: 17")
}

func TestRun_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "run")
	assert.Error(t, err, "missing config")

	_, err = env.run(t, "", "run", "-c", env.config, "--sample", "--exhaustive")
	assert.Error(t, err)

	_, err = env.run(t, "", "run", "-c", env.config, "--sample", "--percent", "-5")
	assert.ErrorIs(t, err, sim.ErrInvalidPercentage)

	_, err = env.run(t, "", "--format", "xml", "run", "-c", env.config)
	assert.Error(t, err)

	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("variables: []\n"), 0600))
	_, err = env.run(t, "", "run", "-c", bad)
	assert.ErrorIs(t, err, sim.ErrNoVariables)
}

func TestRun_RemoteDefinition(t *testing.T) {
	env := newTestEnv(t)
	b, err := config.Encode(config.Example(), config.FormatJSON)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(b)
	}))
	defer srv.Close()

	out, err := env.run(t, "", "run", "-c", srv.URL+"/example.json", "--token", "abc", "--exhaustive", "--top", "1")
	require.NoError(t, err)
	assert.Equal(t, "Top 1 combinations:\nCombination: (July, vacation, sun), Score: 21\n", out)

	_, err = env.run(t, "", "run", "-c", srv.URL+"/example.json")
	assert.ErrorContains(t, err, "403")

	out, err = env.run(t, "abc\n", "token", "set")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved")

	_, err = env.run(t, "", "run", "-c", srv.URL+"/example.json", "--top", "1")
	require.NoError(t, err)

	_, err = env.run(t, "", "token", "clear")
	require.NoError(t, err)

	_, err = env.run(t, "", "run", "-c", srv.URL+"/example.json")
	assert.ErrorContains(t, err, "403")
}

func TestToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "\n", "token", "set")
	assert.Error(t, err)

	_, err = env.run(t, "", "token", "set", "--value", "xyz")
	require.NoError(t, err)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	var got string
	app.Commands = append(app.Commands, &urfave.Command{
		Name: "peek",
		Action: func(c *urfave.Context) error {
			got = getToken(c)
			return nil
		},
	})
	require.NoError(t, app.Run([]string{appName, "--db", env.db, "peek"}))
	assert.Equal(t, "xyz", got)

	_, err = env.run(t, "", "token", "clear")
	require.NoError(t, err)
	_, err = env.run(t, "", "token", "clear")
	assert.NoError(t, err)
}

func TestRun_SaveAndHistory(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "run", "-c", env.config, "--exhaustive", "--save", "--name", "first")
	require.NoError(t, err)
	require.Contains(t, out, "Saved run: ")
	id := strings.TrimSpace(out[strings.Index(out, "Saved run: ")+len("Saved run: "):])
	require.NotEmpty(t, id)

	out, err = env.run(t, "", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "first")

	out, err = env.run(t, "", "history", "show", "--id", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Combination: (July, vacation, sun), Score: 21")
	assert.Contains(t, out, "Evaluated: 12 of 12")

	out, err = env.run(t, "", "--format", "json", "history", "show", "--id", id)
	require.NoError(t, err)
	var r data.Run
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, id, r.ID)
	assert.Len(t, r.Results, 5)
	assert.Contains(t, r.Definition, "vacation")

	_, err = env.run(t, "", "history", "delete", "--id", id)
	require.NoError(t, err)

	_, err = env.run(t, "", "history", "show", "--id", id)
	assert.ErrorIs(t, err, data.ErrRunNotFound)
}

func TestHistoryReset(t *testing.T) {
	env := newTestEnv(t)

	for range 2 {
		_, err := env.run(t, "", "run", "-c", env.config, "--save")
		require.NoError(t, err)
	}

	out, err := env.run(t, "n\n", "history", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = env.run(t, "", "--format", "json", "history", "list")
	require.NoError(t, err)
	var list []*data.Run
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 2)

	_, err = env.run(t, "y\n", "history", "reset")
	require.NoError(t, err)

	out, err = env.run(t, "", "--format", "json", "history", "list")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Empty(t, list)

	_, err = env.run(t, "", "history", "reset", "--force")
	assert.NoError(t, err)
}

func TestTrials(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "trials", "-c", env.config, "--count", "4", "--percent", "100", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Trials: 4")
	assert.Contains(t, out, "Agreement with exhaustive top 5: 100.0%")
	assert.Contains(t, out, "4/4 (July, vacation, sun), Score: 21")

	out, err = env.run(t, "", "--format", "json", "trials", "-c", env.config, "--count", "3", "--compare=false")
	require.NoError(t, err)
	var tr sim.TrialReport
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	assert.Equal(t, 3, tr.Trials)
	assert.Nil(t, tr.Exhaustive)
}

func TestExample(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "example")
	require.NoError(t, err)
	def, err := config.Parse([]byte(out), config.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, config.Example(), def)

	out, err = env.run(t, "", "--format", "json", "example")
	require.NoError(t, err)
	def, err = config.Parse([]byte(out), config.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, config.Example(), def)

	p := filepath.Join(env.dir, "out.toml")
	_, err = env.run(t, "", "example", "--out", p)
	require.NoError(t, err)
	def, err = config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, config.Example(), def)
}
