package main

import (
	"fmt"
	"regexp"
	"strings"
)

// Keywords is the fixed feature-keyword set. Any other key aborts the run.
var Keywords = map[string]bool{
	"name":       true,
	"background": true,
	"depends_on": true,
	"if":         true,
	"unless":     true,
	"set":        true,
	"timeout":    true,
	"retries":    true,
	"interval":   true,
}

// Features is a command's keyword -> value mapping, decoded straight from YAML.
type Features map[string]any

func (f Features) Name() string {
	s, _ := f["name"].(string)
	return s
}

func (f Features) Background() bool {
	b, _ := f["background"].(bool)
	return b
}

// StringList normalises a feature value that may be a bare string or a list
// of strings (depends_on, if, unless, set).
func (f Features) StringList(key string) []string {
	switch v := f[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := item.(string)
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func (f Features) Retries() int {
	v, ok := f["retries"]
	if !ok {
		return 0
	}
	return toInt(v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toSeconds(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// Command is an immutable shell string paired with its feature mapping.
type Command struct {
	Text     string
	Features Features
}

// NewCommand builds a Command from a decoded command-entry: a bare string, or
// a single-key mapping whose key is the shell text and value the features.
func NewCommand(entry any) (Command, error) {
	switch v := entry.(type) {
	case string:
		return Command{Text: strings.TrimRight(v, "\n"), Features: Features{}}, nil
	case map[string]any:
		if len(v) != 1 {
			return Command{}, fmt.Errorf("command mapping must have exactly one key, got %d", len(v))
		}
		for text, rawFeatures := range v {
			features, err := parseFeatures(rawFeatures)
			if err != nil {
				return Command{}, err
			}
			return Command{Text: strings.TrimRight(text, "\n"), Features: features}, nil
		}
		panic("unreachable")
	default:
		return Command{}, fmt.Errorf("command must be a string, got %T", v)
	}
}

func parseFeatures(raw any) (Features, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("command features must be a mapping, got %T", raw)
	}
	out := make(Features, len(m))
	for k, v := range m {
		if !Keywords[k] {
			return nil, fmt.Errorf("unknown feature keyword %q", k)
		}
		out[k] = v
	}
	return out, nil
}

// seriesPattern matches a single {{...}} occurrence; its content excludes
// braces so series never nest syntactically.
var seriesPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

var labelPattern = regexp.MustCompile(`^[A-Za-z_]+$`)

// seriesSpec is a parsed {{items}} occurrence. identity drives equality: two
// series with the same identity co-expand at the same index, regardless of
// whether one spells its label explicitly and the other just repeats it
// (e.g. {{my:A,B}} and a later bare {{my}} share identity "my").
type seriesSpec struct {
	identity string
	labeled  bool
	items    []string
}

func parseSeriesSpec(raw string) (seriesSpec, error) {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		label := raw[:idx]
		if labelPattern.MatchString(label) {
			items := strings.Split(raw[idx+1:], ",")
			return seriesSpec{identity: label, labeled: true, items: items}, nil
		}
	}
	items := strings.Split(raw, ",")
	return seriesSpec{identity: strings.Join(items, ","), labeled: false, items: items}, nil
}

// expandString replaces every occurrence of target's identity in s with the
// item at index, per the 1-1 mapping rule for same-identity labeled series.
func expandString(s string, target seriesSpec, index int) (string, error) {
	matches := seriesPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s, nil
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		start, end, innerStart, innerEnd := m[0], m[1], m[2], m[3]
		occ, err := parseSeriesSpec(s[innerStart:innerEnd])
		if err != nil {
			return "", err
		}
		if occ.identity != target.identity {
			continue
		}
		items := target.items
		if occ.labeled {
			if len(occ.items) != len(target.items) {
				return "", fmt.Errorf("group mapping must be 1-1: series %q has %d items, expected %d", target.identity, len(occ.items), len(target.items))
			}
			items = occ.items
		}
		if index >= len(items) {
			return "", fmt.Errorf("series %q index %d out of range", target.identity, index)
		}
		sb.WriteString(s[last:start])
		sb.WriteString(items[index])
		last = end
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

func expandFeatureValue(v any, target seriesSpec, index int) (any, error) {
	switch x := v.(type) {
	case string:
		return expandString(x, target, index)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				out[i] = item
				continue
			}
			ns, err := expandString(s, target, index)
			if err != nil {
				return nil, err
			}
			out[i] = ns
		}
		return out, nil
	default:
		return v, nil
	}
}

// expandSeries substitutes target's item at index into every matching
// occurrence in the command's text and feature values.
func (c Command) expandSeries(target seriesSpec, index int) (Command, error) {
	newText, err := expandString(c.Text, target, index)
	if err != nil {
		return Command{}, err
	}
	newFeatures := make(Features, len(c.Features))
	for k, v := range c.Features {
		nv, err := expandFeatureValue(v, target, index)
		if err != nil {
			return Command{}, err
		}
		newFeatures[k] = nv
	}
	return Command{Text: newText, Features: newFeatures}, nil
}

func firstSeriesOccurrence(c Command) (string, bool) {
	if m := seriesPattern.FindStringSubmatch(c.Text); m != nil {
		return m[1], true
	}
	keys := make([]string, 0, len(c.Features))
	for k := range c.Features {
		keys = append(keys, k)
	}
	strSliceSort(keys)
	for _, k := range keys {
		switch v := c.Features[k].(type) {
		case string:
			if m := seriesPattern.FindStringSubmatch(v); m != nil {
				return m[1], true
			}
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					continue
				}
				if m := seriesPattern.FindStringSubmatch(s); m != nil {
					return m[1], true
				}
			}
		}
	}
	return "", false
}

func strSliceSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// generateAllCommands expands every {{...}} occurrence in c, recursively,
// yielding the concrete leaf Commands. The first occurrence found (leftmost
// in the command text, then feature values in key order) is the outer loop,
// so it varies slowest in a cartesian product.
func (c Command) generateAllCommands() ([]Command, error) {
	raw, found := firstSeriesOccurrence(c)
	if !found {
		return []Command{c}, nil
	}
	spec, err := parseSeriesSpec(raw)
	if err != nil {
		return nil, err
	}
	var out []Command
	for i := range spec.items {
		expanded, err := c.expandSeries(spec, i)
		if err != nil {
			return nil, err
		}
		sub, err := expanded.generateAllCommands()
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

