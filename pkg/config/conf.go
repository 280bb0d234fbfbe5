package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mchmarny/combo/pkg/net"
	"github.com/mchmarny/combo/pkg/sim"
	"gopkg.in/yaml.v3"
)

const (
	fileMode = 0600
)

// Format is a definition file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var ErrUnsupportedFormat = errors.New("unsupported definition format")

// Variable is a named dimension in a definition file.
type Variable struct {
	Name    string  `json:"name" yaml:"name" toml:"name"`
	Choices Choices `json:"choices" yaml:"choices" toml:"choices"`
}

// Rule is a score adjustment in a definition file.
type Rule struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Elements   []string `json:"elements" yaml:"elements" toml:"elements"`
	Operation  string   `json:"operation" yaml:"operation" toml:"operation"`
	Adjustment float64  `json:"adjustment" yaml:"adjustment" toml:"adjustment"`
}

// Sampling is the sampling section of a definition file.
type Sampling struct {
	Enabled    bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Percentage *float64 `json:"percentage,omitempty" yaml:"percentage,omitempty" toml:"percentage,omitempty"`
	Strategy   string   `json:"strategy,omitempty" yaml:"strategy,omitempty" toml:"strategy,omitempty"`
	Seed       *uint64  `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
}

// Definition is a complete simulation definition as stored on disk.
type Definition struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Top       *int       `json:"top,omitempty" yaml:"top,omitempty" toml:"top,omitempty"`
	Sampling  Sampling   `json:"sampling" yaml:"sampling" toml:"sampling"`
	Variables []Variable `json:"variables" yaml:"variables" toml:"variables"`
	Rules     []Rule     `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
}

// SimConfig converts the definition into an engine configuration, filling defaults.
func (d *Definition) SimConfig() sim.Config {
	cfg := sim.Config{
		Top: sim.TopDefault,
		Sampling: sim.Sampling{
			Enabled:    d.Sampling.Enabled,
			Percentage: sim.PercentageDefault,
			Strategy:   sim.Strategy(d.Sampling.Strategy),
			Seed:       d.Sampling.Seed,
		},
		Variables: make([]sim.Variable, 0, len(d.Variables)),
		Rules:     make([]sim.Rule, 0, len(d.Rules)),
	}
	if d.Top != nil {
		cfg.Top = *d.Top
	}
	if d.Sampling.Percentage != nil {
		cfg.Sampling.Percentage = *d.Sampling.Percentage
	}

	for _, v := range d.Variables {
		sv := sim.Variable{Name: v.Name, Choices: make([]sim.Choice, 0, len(v.Choices))}
		for _, c := range v.Choices {
			sv.Choices = append(sv.Choices, sim.Choice{Label: c.Label, Weight: c.Weight})
		}
		cfg.Variables = append(cfg.Variables, sv)
	}

	for _, r := range d.Rules {
		cfg.Rules = append(cfg.Rules, sim.Rule{
			Name:       r.Name,
			Elements:   r.Elements,
			Operation:  sim.Operation(strings.ToLower(strings.TrimSpace(r.Operation))),
			Adjustment: r.Adjustment,
		})
	}

	return cfg
}

// FormatFromPath derives the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Parse decodes a definition in the given format.
func Parse(b []byte, f Format) (*Definition, error) {
	var d Definition
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("error decoding yaml definition: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("error decoding json definition: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(b), &d)
		if err != nil {
			return nil, fmt.Errorf("error decoding toml definition: %w", err)
		}
		if u := md.Undecoded(); len(u) > 0 {
			return nil, fmt.Errorf("error decoding toml definition: unknown keys %v", u)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return &d, nil
}

// Load reads the definition file at path.
func Load(path string) (*Definition, error) {
	if path == "" {
		return nil, errors.New("definition file path required")
	}

	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading definition file %s: %w", path, err)
	}

	d, err := Parse(b, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Read loads the definition from a local path or an http(s) URL.
// The format is taken from the extension of the path or URL path.
func Read(ctx context.Context, src, token string) (*Definition, error) {
	if !net.IsURL(src) {
		return Load(src)
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("error parsing definition URL: %w", err)
	}

	f, err := FormatFromPath(u.Path)
	if err != nil {
		return nil, err
	}

	b, err := net.Fetch(ctx, src, token)
	if err != nil {
		return nil, fmt.Errorf("error fetching definition: %w", err)
	}

	d, err := Parse(b, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return d, nil
}

// Encode writes d in the given format.
func Encode(d *Definition, f Format) ([]byte, error) {
	if d == nil {
		return nil, errors.New("definition required")
	}

	var buf bytes.Buffer
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, fmt.Errorf("failed to marshal definition: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to marshal definition: %w", err)
		}
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return nil, fmt.Errorf("failed to marshal definition: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(d); err != nil {
			return nil, fmt.Errorf("failed to marshal definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return buf.Bytes(), nil
}

// Save writes d to path using the format implied by its extension.
func Save(path string, d *Definition) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	b, err := Encode(d, f)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write definition file: %s: %w", path, err)
	}
	return nil
}
