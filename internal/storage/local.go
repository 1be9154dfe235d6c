package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lyrix/internal/types"
)

// LocalStorage writes finished lyrics and their metadata to disk.
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a local artifact writer rooted at outputDir.
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{outputDir: outputDir}
}

// SaveLyrics writes the lyrics text and a metadata JSON under a dated
// directory tree (outputs/2026/08/29/...) and returns the text path.
func (ls *LocalStorage) SaveLyrics(jobID, filename string, result *types.Result, meta types.Meta) (string, error) {
	now := time.Now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("create date directory: %w", err)
	}

	timestamp := now.Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", timestamp, sanitizeFilename(filename))

	txtPath := filepath.Join(dateDir, base+".txt")
	metaPath := filepath.Join(dateDir, base+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(result.Lyrics), 0644); err != nil {
		return "", fmt.Errorf("save lyrics: %w", err)
	}

	metadata := map[string]any{
		"job_id":           jobID,
		"filename":         filename,
		"duration_seconds": meta.DurationSeconds,
		"language":         meta.Language,
		"separation_used":  meta.SeparationUsed,
		"created_at":       now.UTC(),
		"word_count":       len(strings.Fields(result.Lyrics)),
		"local_path":       txtPath,
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("save metadata: %w", err)
	}

	return txtPath, nil
}

// sanitizeFilename keeps artifact names filesystem-safe.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	name = replacer.Replace(name)
	if name == "" {
		name = "untitled"
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
