package main

import "fmt"

// seriesBinding pairs a foreach-introduced series with the loop index
// currently in scope for it.
type seriesBinding struct {
	spec  seriesSpec
	index int
}

// GenerateCommands expands a decoded top-level command list (or the body of
// a sequence) into the flat, concrete Command list the scheduler consumes.
func GenerateCommands(entries []any) ([]Command, error) {
	return generateEntries(entries, nil)
}

func generateEntries(entries []any, bound []seriesBinding) ([]Command, error) {
	var out []Command
	for _, entry := range entries {
		if nested, ok := entry.([]any); ok {
			cmds, err := generateSequence(nested, bound)
			if err != nil {
				return nil, err
			}
			out = append(out, cmds...)
			continue
		}

		cmd, err := NewCommand(entry)
		if err != nil {
			return nil, err
		}
		for _, b := range bound {
			cmd, err = cmd.expandSeries(b.spec, b.index)
			if err != nil {
				return nil, err
			}
		}
		expanded, err := cmd.generateAllCommands()
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// generateSequence expands a nested list. If its first element is a mapping
// with a "foreach" key, the remainder is expanded once per item of that
// series; otherwise the elements are simply grouped in source order.
func generateSequence(seq []any, bound []seriesBinding) ([]Command, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("sequence must not be empty")
	}

	head, ok := seq[0].(map[string]any)
	if !ok {
		return generateEntries(seq, bound)
	}
	rawForeach, hasForeach := head["foreach"]
	if !hasForeach {
		return generateEntries(seq, bound)
	}

	foreachStr, _ := rawForeach.(string)
	spec, err := parseSeriesSpec(foreachStr)
	if err != nil {
		return nil, err
	}
	for _, b := range bound {
		if b.spec.identity == spec.identity {
			return nil, fmt.Errorf("series %q already defined in a parent sequence", spec.identity)
		}
	}

	var out []Command
	for i := range spec.items {
		newBound := make([]seriesBinding, len(bound), len(bound)+1)
		copy(newBound, bound)
		newBound = append(newBound, seriesBinding{spec: spec, index: i})

		cmds, err := generateEntries(seq[1:], newBound)
		if err != nil {
			return nil, err
		}
		out = append(out, cmds...)
	}
	return out, nil
}
