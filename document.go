package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the decoded top-level shape of a configuration file: either a
// flat command list (assigned to Main) or a mapping with environment/main/post.
type Document struct {
	Environment map[string]string
	Main        []any
	Post        []any
}

// DocumentLoader decodes a configuration file into a Document. It is the
// narrow interface the run controller depends on; the core scheduler never
// imports a YAML library directly.
type DocumentLoader interface {
	Load(path string) (*Document, error)
}

type yamlDocumentLoader struct{}

func (yamlDocumentLoader) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	switch v := raw.(type) {
	case []any:
		return &Document{Main: v}, nil
	case map[string]any:
		doc := &Document{}
		if env, ok := v["environment"].(map[string]any); ok {
			doc.Environment = stringifyMap(env)
		}
		if main, ok := v["main"].([]any); ok {
			doc.Main = main
		}
		if post, ok := v["post"].([]any); ok {
			doc.Post = post
		}
		return doc, nil
	case nil:
		return &Document{}, nil
	default:
		return nil, fmt.Errorf("%s: top level must be a list or a mapping, got %T", path, v)
	}
}

func stringifyMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

var defaultLoader DocumentLoader = yamlDocumentLoader{}

// LoadDocument loads and decodes a configuration file with the default loader.
func LoadDocument(path string) (*Document, error) {
	return defaultLoader.Load(path)
}

// expandEnvironment applies shell-style $VAR expansion (against the invoking
// process's environment) to every value in the document's environment overlay.
func expandEnvironment(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
