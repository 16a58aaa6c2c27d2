package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	IndexerKindJSON  = "json"
	IndexerKindTable = "table"
)

// SourcesFile is the operator-supplied list of sources (in priority order) and indexers.
type SourcesFile struct {
	Sources  []SourceConfig  `json:"sources"`
	Indexers []IndexerConfig `json:"indexers"`
}

type SourceConfig struct {
	Name               string           `json:"name"`
	Mirrors            []string         `json:"mirrors"`
	RequiresBrowser    bool             `json:"requires_browser"`
	BehindBotWall      bool             `json:"behind_bot_wall"`
	SearchTemplates    []SearchTemplate `json:"search_templates"`
	DetailSelectors    []string         `json:"detail_selectors"`
	PlaySelectors      []string         `json:"play_selectors"`
	ChallengeSelectors []string         `json:"challenge_selectors"`
}

// SearchTemplate is a path relative to a mirror containing a {query} placeholder.
// Separator decides how spaces in the query are encoded: "%20", "+", "-",
// or "" for full query-string escaping.
type SearchTemplate struct {
	Path      string `json:"path"`
	Separator string `json:"separator"`
}

type IndexerConfig struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	BaseURL      string `json:"base_url"`
	SearchPath   string `json:"search_path"`
	RowSelector  string `json:"row_selector"`
	TitleColumn  int    `json:"title_column"`
	SeedsColumn  int    `json:"seeds_column"`
	SizeColumn   int    `json:"size_column"`
	LinkSelector string `json:"link_selector"`
}

func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sf SourcesFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	return &sf, nil
}
