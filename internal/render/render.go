// Package render is the artifact-generation collaborator. The engine only
// knows that rendering either yields an artifact reference or fails; the byte
// format lives entirely behind the Renderer interface.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Renderer materializes a report model into a stored artifact.
type Renderer interface {
	// Render writes the artifact and returns its reference.
	Render(ctx context.Context, reportID string, model any) (string, error)
	// Discard removes a previously rendered artifact. Missing artifacts are
	// not an error; the metadata row is the source of truth for existence.
	Discard(ctx context.Context, artifact string) error
	// List returns stored artifact references last modified before cutoff.
	List(ctx context.Context, cutoff time.Time) ([]string, error)
}

// JSONRenderer writes pretty-printed JSON artifacts under Dir.
type JSONRenderer struct {
	Dir string
}

func NewJSONRenderer(dir string) JSONRenderer {
	return JSONRenderer{Dir: dir}
}

func (r JSONRenderer) Render(ctx context.Context, reportID string, model any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(r.Dir, reportID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report artifact: %w", err)
	}
	return path, nil
}

func (r JSONRenderer) Discard(ctx context.Context, artifact string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (r JSONRenderer) List(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, filepath.Join(r.Dir, entry.Name()))
		}
	}
	return out, nil
}
