package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// cliOptions are the per-invocation read settings. Defaults come from
// defaultCLIOptions, then the -cli-config file, then explicitly set flags.
type cliOptions struct {
	AskStarted         bool
	AskPageThumbnail   bool
	AskSheetThumbnail  bool
	AskSectional       bool
	AskVariantMeasures bool
	AskDimensions      bool
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	ModelPath          string
	ViewDir            string
	LogLevel           string
	ConnectAttempts    int
}

func defaultCLIOptions() cliOptions {
	return cliOptions{
		AskStarted:      true,
		LogLevel:        "warn",
		ConnectAttempts: 3,
	}
}

type fileConfig struct {
	AskTechreadStarted      bool   `toml:"ask_techread_started"`
	AskPageThumbnail        bool   `toml:"ask_page_thumbnail"`
	AskSheetThumbnail       bool   `toml:"ask_sheet_thumbnail"`
	AskSectionalThumbnail   bool   `toml:"ask_sectional_thumbnail"`
	AskVariantMeasures      bool   `toml:"ask_variant_measures"`
	AskPartOverallDimension bool   `toml:"ask_overall_dimensions"`
	ThumbnailMaxWidth       int    `toml:"thumbnail_max_width"`
	ThumbnailMaxHeight      int    `toml:"thumbnail_max_height"`
	Model                   string `toml:"model"`
	ViewDir                 string `toml:"view_dir"`
	LogLevel                string `toml:"log_level"`
	ConnectAttempts         int    `toml:"connect_attempts"`
}

func loadCLIConfig(path string, cfg cliOptions) (cliOptions, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliOptions{}, fmt.Errorf("load cli config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliOptions{}, fmt.Errorf("load cli config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("ask_techread_started") {
		cfg.AskStarted = raw.AskTechreadStarted
	}
	if meta.IsDefined("ask_page_thumbnail") {
		cfg.AskPageThumbnail = raw.AskPageThumbnail
	}
	if meta.IsDefined("ask_sheet_thumbnail") {
		cfg.AskSheetThumbnail = raw.AskSheetThumbnail
	}
	if meta.IsDefined("ask_sectional_thumbnail") {
		cfg.AskSectional = raw.AskSectionalThumbnail
	}
	if meta.IsDefined("ask_variant_measures") {
		cfg.AskVariantMeasures = raw.AskVariantMeasures
	}
	if meta.IsDefined("ask_overall_dimensions") {
		cfg.AskDimensions = raw.AskPartOverallDimension
	}
	if meta.IsDefined("thumbnail_max_width") {
		cfg.ThumbnailMaxWidth = raw.ThumbnailMaxWidth
	}
	if meta.IsDefined("thumbnail_max_height") {
		cfg.ThumbnailMaxHeight = raw.ThumbnailMaxHeight
	}
	if meta.IsDefined("model") {
		cfg.ModelPath = strings.TrimSpace(raw.Model)
	}
	if meta.IsDefined("view_dir") {
		cfg.ViewDir = strings.TrimSpace(raw.ViewDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("connect_attempts") {
		if raw.ConnectAttempts < 1 {
			return cliOptions{}, fmt.Errorf("load cli config: connect_attempts must be >= 1")
		}
		cfg.ConnectAttempts = raw.ConnectAttempts
	}
	return cfg, nil
}
