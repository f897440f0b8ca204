package bookpipe

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures the parsing pipeline.
type Config struct {
	// MaxFileSize is the maximum input buffer size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MinChapterChars drops chapters whose cleaned content is shorter than
	// this (boilerplate/empty pages). Default: 50.
	MinChapterChars int `json:"min_chapter_chars" yaml:"min_chapter_chars"`

	// Heuristics tunes the PDF structure-inference thresholds. These were
	// never validated against a large corpus, so they are parameters rather
	// than constants.
	Heuristics Heuristics `json:"heuristics" yaml:"heuristics"`

	// Logger for debug/warn messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Heuristics holds the tunable thresholds for PDF layout inference.
type Heuristics struct {
	// HeadingRatios maps heading levels 1-4 to the minimum ratio of a run's
	// font size to the page average. Defaults: 1.8, 1.5, 1.3, 1.15.
	HeadingRatios [4]float64 `json:"heading_ratios" yaml:"heading_ratios"`

	// BoldBoost multiplies the effective font-size ratio of bold runs.
	// Default: 1.05.
	BoldBoost float64 `json:"bold_boost" yaml:"bold_boost"`

	// ParagraphGapRatio starts a new paragraph when the vertical gap to the
	// previous line exceeds this multiple of its line height. Default: 1.5.
	ParagraphGapRatio float64 `json:"paragraph_gap_ratio" yaml:"paragraph_gap_ratio"`

	// MaxHeadingChars rejects heading candidates longer than this. Default: 120.
	MaxHeadingChars int `json:"max_heading_chars" yaml:"max_heading_chars"`

	// ChunkPages is the page-group size of the chunking fallback. Default: 10.
	ChunkPages int `json:"chunk_pages" yaml:"chunk_pages"`

	// ChunkThresholdPages triggers the chunking fallback when a document
	// longer than this yields a single detected chapter. Default: 20.
	ChunkThresholdPages int `json:"chunk_threshold_pages" yaml:"chunk_threshold_pages"`

	// MinImageDim skips extracted PDF images smaller than this in either
	// dimension (decorations, rules). Default: 10.
	MinImageDim int `json:"min_image_dim" yaml:"min_image_dim"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MinChapterChars <= 0 {
		c.MinChapterChars = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Heuristics.defaults()
}

func (h *Heuristics) defaults() {
	if h.HeadingRatios == [4]float64{} {
		h.HeadingRatios = [4]float64{1.8, 1.5, 1.3, 1.15}
	}
	if h.BoldBoost <= 0 {
		h.BoldBoost = 1.05
	}
	if h.ParagraphGapRatio <= 0 {
		h.ParagraphGapRatio = 1.5
	}
	if h.MaxHeadingChars <= 0 {
		h.MaxHeadingChars = 120
	}
	if h.ChunkPages <= 0 {
		h.ChunkPages = 10
	}
	if h.ChunkThresholdPages <= 0 {
		h.ChunkThresholdPages = 20
	}
	if h.MinImageDim <= 0 {
		h.MinImageDim = 10
	}
}

// LoadConfig reads a YAML config file. Missing fields keep their defaults
// when the resulting Config is handed to New.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
