package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Choice is a label and its weight as written in a definition file.
type Choice struct {
	Label  string  `json:"label" yaml:"label" toml:"label"`
	Weight float64 `json:"weight" yaml:"weight" toml:"weight"`
}

// Choices is the ordered label -> weight mapping of a variable. It reads either
// a mapping (label: weight) or a list of {label, weight}. Mapping order is kept.
type Choices []Choice

func (c *Choices) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		list := make(Choices, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var w float64
			if err := n.Content[i+1].Decode(&w); err != nil {
				return fmt.Errorf("line %d: weight of %q: %w", n.Content[i+1].Line, n.Content[i].Value, err)
			}
			list = append(list, Choice{Label: n.Content[i].Value, Weight: w})
		}
		*c = list
		return nil
	case yaml.SequenceNode:
		var list []Choice
		if err := n.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("line %d: choices must be a mapping or a list", n.Line)
	}
}

func (c Choices) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, ch := range c {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ch.Label},
			&yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(ch.Weight, 'g', -1, 64)})
	}
	return n, nil
}

func (c *Choices) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []Choice
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*c = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if t, err := dec.Token(); err != nil || t != json.Delim('{') {
		return errors.New("choices must be an object or an array")
	}

	var list Choices
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read choice label: %w", err)
		}
		label, ok := t.(string)
		if !ok {
			return fmt.Errorf("unexpected choice label: %v", t)
		}
		var w float64
		if err := dec.Decode(&w); err != nil {
			return fmt.Errorf("weight of %q: %w", label, err)
		}
		list = append(list, Choice{Label: label, Weight: w})
	}
	*c = list
	return nil
}

func (c Choices) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ch := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(ch.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(ch.Weight)
		if err != nil {
			return nil, fmt.Errorf("weight of %q: %w", ch.Label, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalTOML reads an array of {label, weight} tables. TOML tables are not
// ordered once decoded, so the mapping form is rejected.
func (c *Choices) UnmarshalTOML(v any) error {
	var items []any
	switch t := v.(type) {
	case []map[string]any:
		for _, m := range t {
			items = append(items, m)
		}
	case []any:
		items = t
	case map[string]any:
		return errors.New("toml choices must be an array of {label, weight} tables to keep their order")
	default:
		return fmt.Errorf("unexpected toml choices: %T", v)
	}

	list := make(Choices, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return fmt.Errorf("choice %d: expected a table, got %T", i, it)
		}
		label, ok := m["label"].(string)
		if !ok {
			return fmt.Errorf("choice %d: label must be a string", i)
		}
		var w float64
		switch n := m["weight"].(type) {
		case int64:
			w = float64(n)
		case float64:
			w = n
		case nil:
		default:
			return fmt.Errorf("choice %d (%s): weight must be a number, got %T", i, label, n)
		}
		list = append(list, Choice{Label: label, Weight: w})
	}
	*c = list
	return nil
}
