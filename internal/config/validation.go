package config

import (
	"fmt"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

var validSeparators = map[string]bool{"%20": true, "+": true, "-": true, "": true}

func (c *Config) validate() error {
	if err := c.validateRequiredFields(); err != nil {
		return err
	}
	if err := c.validateDownloadSettings(); err != nil {
		return err
	}
	if err := c.validateFetchSettings(); err != nil {
		return err
	}
	if err := c.validateSelectionSettings(); err != nil {
		return err
	}
	return c.validateSources()
}

func (c *Config) validateRequiredFields() error {
	var missingFields []string

	if c.OutputDir == "" {
		missingFields = append(missingFields, "OUTPUT_DIR")
	}
	if c.SourcesFile == "" {
		missingFields = append(missingFields, "SOURCES_FILE")
	}

	if len(missingFields) > 0 {
		return utils.WrapError(utils.ErrConfigurationError, "missing required environment variables", map[string]any{
			"missing_fields": missingFields,
		})
	}
	if c.TaskStore != TaskStoreMemory && c.TaskStore != TaskStoreSQLite {
		return utils.WrapError(utils.ErrConfigurationError, "unknown TASK_STORE", map[string]any{
			"task_store": c.TaskStore,
		})
	}
	return nil
}

func (c *Config) validateDownloadSettings() error {
	if c.DownloadSettings.MaxConcurrentDownloads <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "max concurrent downloads must be positive", nil)
	}
	e := c.ExtractSettings
	if e.ReachTimeout <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "reachability timeout must be positive", nil)
	}
	if e.ChallengeWaitWindow < 0 || e.HumanPacingWindow < 0 {
		return utils.WrapError(utils.ErrConfigurationError, "wait windows cannot be negative", nil)
	}
	if e.MaxDetailLinks < 1 || e.MaxDetailLinks > 5 {
		return utils.WrapError(utils.ErrConfigurationError, "MAX_DETAIL_LINKS must be between 1 and 5", map[string]any{
			"max_detail_links": e.MaxDetailLinks,
		})
	}
	return nil
}

func (c *Config) validateFetchSettings() error {
	f := c.FetchSettings
	if f.Retries < 3 || f.Retries > 5 {
		return utils.WrapError(utils.ErrConfigurationError, "FETCH_RETRIES must be between 3 and 5", map[string]any{
			"retries": f.Retries,
		})
	}
	if f.MaxHeight <= 0 || f.MaxHeight > DefaultFetchMaxHeight {
		return utils.WrapError(utils.ErrConfigurationError, "FETCH_MAX_HEIGHT must be between 1 and 1080", map[string]any{
			"max_height": f.MaxHeight,
		})
	}
	if f.MinFileSize < 0 || f.AttemptTimeout <= 0 || f.FragmentTimeout <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "invalid fetch limits", nil)
	}
	return nil
}

func (c *Config) validateSelectionSettings() error {
	s := c.SelectionSettings
	if s.Count <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "SELECT_COUNT must be positive", nil)
	}
	if s.Max1080p < 0 || s.Max720p < 0 || s.MinSeeds1080p < 1 || s.MinSeeds720p < 1 || s.MinSeedsOther < 1 {
		return utils.WrapError(utils.ErrConfigurationError, "invalid selection thresholds", nil)
	}
	return nil
}

func (c *Config) validateSources() error {
	if len(c.Sources) == 0 && len(c.Indexers) == 0 {
		return utils.WrapError(utils.ErrConfigurationError, "sources file defines no sources and no indexers", nil)
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			return sourceError(fmt.Sprintf("sources[%d]", i), "name is required")
		}
		if seen[s.Name] {
			return sourceError(s.Name, "duplicate source name")
		}
		seen[s.Name] = true
		if len(s.Mirrors) == 0 {
			return sourceError(s.Name, "at least one mirror is required")
		}
		for _, m := range s.Mirrors {
			if !utils.IsValidLink(m) {
				return sourceError(s.Name, "invalid mirror URL "+m)
			}
		}
		if len(s.SearchTemplates) == 0 {
			return sourceError(s.Name, "at least one search template is required")
		}
		for _, tpl := range s.SearchTemplates {
			if !strings.Contains(tpl.Path, "{query}") {
				return sourceError(s.Name, "search template without {query}: "+tpl.Path)
			}
			if !validSeparators[tpl.Separator] {
				return sourceError(s.Name, "unknown separator "+tpl.Separator)
			}
		}
	}

	for i, ix := range c.Indexers {
		if ix.Name == "" {
			return sourceError(fmt.Sprintf("indexers[%d]", i), "name is required")
		}
		if !utils.IsValidLink(ix.BaseURL) {
			return sourceError(ix.Name, "invalid base_url")
		}
		if !strings.Contains(ix.SearchPath, "{query}") {
			return sourceError(ix.Name, "search_path without {query}")
		}
		switch ix.Kind {
		case IndexerKindJSON:
		case IndexerKindTable:
			if ix.RowSelector == "" || ix.TitleColumn < 0 || ix.SeedsColumn < 0 || ix.SizeColumn < 0 {
				return sourceError(ix.Name, "table indexer needs row_selector and non-negative columns")
			}
		default:
			return sourceError(ix.Name, "unknown indexer kind "+ix.Kind)
		}
	}
	return nil
}

func sourceError(name, reason string) error {
	return utils.WrapError(utils.ErrConfigurationError, "invalid sources file entry "+name+": "+reason, map[string]any{
		"entry":  name,
		"reason": reason,
	})
}
