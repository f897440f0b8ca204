package bookpipe

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("max file size = %d", cfg.MaxFileSize)
	}
	if cfg.MinChapterChars != 50 {
		t.Errorf("min chapter chars = %d", cfg.MinChapterChars)
	}
	if cfg.Logger == nil {
		t.Error("logger not defaulted")
	}
	h := cfg.Heuristics
	if h.HeadingRatios != [4]float64{1.8, 1.5, 1.3, 1.15} {
		t.Errorf("heading ratios = %v", h.HeadingRatios)
	}
	if h.ChunkPages != 10 || h.ChunkThresholdPages != 20 {
		t.Errorf("chunking = %d/%d", h.ChunkPages, h.ChunkThresholdPages)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := `
max_file_size: 1048576
min_chapter_chars: 10
heuristics:
  bold_boost: 1.2
  chunk_pages: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxFileSize != 1048576 {
		t.Errorf("max file size = %d", cfg.MaxFileSize)
	}
	if cfg.MinChapterChars != 10 {
		t.Errorf("min chapter chars = %d", cfg.MinChapterChars)
	}
	if cfg.Heuristics.BoldBoost != 1.2 {
		t.Errorf("bold boost = %v", cfg.Heuristics.BoldBoost)
	}
	if cfg.Heuristics.ChunkPages != 5 {
		t.Errorf("chunk pages = %d", cfg.Heuristics.ChunkPages)
	}

	// Unset fields pick up defaults when handed to New.
	pipe := New(cfg)
	if pipe.cfg.Heuristics.ParagraphGapRatio != 1.5 {
		t.Errorf("gap ratio = %v", pipe.cfg.Heuristics.ParagraphGapRatio)
	}
	if pipe.cfg.MaxFileSize != 1048576 {
		t.Errorf("explicit value overridden: %d", pipe.cfg.MaxFileSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/cfg.yaml"); err == nil {
		t.Fatal("expected error")
	}
}
