package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	SourceRSS  = "rss"
	SourceHTML = "html"
)

// Source describes one platform to poll.
type Source struct {
	ID            string `yaml:"id"`
	Type          string `yaml:"type"`
	URL           string `yaml:"url"`
	ItemSelector  string `yaml:"item_selector"`
	TitleSelector string `yaml:"title_selector"`
	Limit         int    `yaml:"limit"`
}

// SourcesConfig is the YAML layout:
//
//	sources:
//	  - id: hackernews
//	    type: rss
//	    url: https://...
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads and validates the source list at path.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.ID == "" {
			return nil, fmt.Errorf("source #%d: id is required", i+1)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("source %q: duplicate id", s.ID)
		}
		seen[s.ID] = true

		if s.URL == "" {
			return nil, fmt.Errorf("source %q: url is required", s.ID)
		}
		switch s.Type {
		case SourceRSS:
		case SourceHTML:
			if s.ItemSelector == "" {
				return nil, fmt.Errorf("source %q: item_selector is required for html sources", s.ID)
			}
		default:
			return nil, fmt.Errorf("source %q: type must be 'rss' or 'html', got %q", s.ID, s.Type)
		}
		if s.Limit < 0 {
			return nil, fmt.Errorf("source %q: limit must not be negative", s.ID)
		}
	}
	return cfg.Sources, nil
}
