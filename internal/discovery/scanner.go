// Package discovery enumerates locally installed server instances. Each
// candidate is a subdirectory of the scan root carrying a config.json.
package discovery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loykin/servhub/internal/record"
)

// instanceConfig is the on-disk config.json shape. Every field is
// optional; defaults are derived from the directory name.
type instanceConfig struct {
	Name      string                     `json:"name"`
	Title     string                     `json:"title"`
	Version   string                     `json:"version"`
	Functions []string                   `json:"functions"`
	Settings  []record.SettingDescriptor `json:"settings"`
	Setting   map[string]any             `json:"setting"`
}

const defaultVersion = "1.0.0"

// Scanner reads candidate server instances from a fixed root directory.
type Scanner struct {
	root   string
	logger *slog.Logger
}

func NewScanner(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{root: root, logger: logger}
}

// Scan returns one local ServerRecord per readable subdirectory.
// Directories with missing or malformed config.json are skipped; the scan
// never aborts because of a single bad candidate.
func (s *Scanner) Scan() ([]record.ServerRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read servers dir %s: %w", s.root, err)
	}

	var out []record.ServerRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		rec, err := s.readInstance(dir, e.Name())
		if err != nil {
			s.logger.Debug("skipping server candidate", "dir", dir, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Scanner) readInstance(dir, dirName string) (record.ServerRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return record.ServerRecord{}, err
	}
	var cfg instanceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return record.ServerRecord{}, fmt.Errorf("malformed config.json: %w", err)
	}

	if cfg.Name == "" {
		cfg.Name = dirName
	}
	if cfg.Title == "" {
		cfg.Title = dirName
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}

	return record.ServerRecord{
		Key:       record.Key(cfg.Name, cfg.Version),
		Name:      cfg.Name,
		Title:     cfg.Title,
		Version:   cfg.Version,
		Type:      record.TypeLocal,
		Functions: cfg.Functions,
		LocalPath: dir,
		Settings:  cfg.Settings,
		Setting:   cfg.Setting,
	}, nil
}
