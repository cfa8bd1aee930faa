// Package filestore indexes a mounted directory tree: pdf, docx, txt and
// markdown files. Access is declared per directory in an ".access.json"
// sidecar; files without one are indexed as private to nobody until a
// sidecar appears.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/beaconhq/beacon/internal/connectors"
	"github.com/beaconhq/beacon/pkg/textextract"
)

type Config struct {
	Root      string `json:"root"`
	BatchSize int    `json:"batch_size,omitempty"`
}

type Connector struct {
	cfg Config
}

func New(raw json.RawMessage, _ string) (connectors.Connector, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse filestore config: %w", err)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("filestore config: root required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Connector{cfg: cfg}, nil
}

func (c *Connector) Type() string { return "filestore" }

type fileEntry struct {
	path    string
	modTime time.Time
}

// cursor is the (mtime, path) of the last delivered file. Files are walked
// in that order, so resuming skips everything at or before the cursor.
type cursor struct {
	ModTime time.Time `json:"mt"`
	Path    string    `json:"p"`
}

func (cur cursor) before(e fileEntry) bool {
	if e.modTime.After(cur.ModTime) {
		return true
	}
	return e.modTime.Equal(cur.ModTime) && e.path > cur.Path
}

func (c *Connector) Poll(ctx context.Context, rawCursor string) (*connectors.Batch, error) {
	var cur cursor
	if rawCursor != "" {
		if err := json.Unmarshal([]byte(rawCursor), &cur); err != nil {
			return nil, fmt.Errorf("decode filestore cursor: %w", err)
		}
	}

	entries, err := c.listFiles()
	if err != nil {
		return nil, err
	}

	var docs []connectors.RawDocument
	next := cur
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", connectors.ErrSourceUnavailable, err)
		}
		if rawCursor != "" && !cur.before(e) {
			continue
		}
		if len(docs) >= c.cfg.BatchSize {
			b, _ := json.Marshal(next)
			return &connectors.Batch{Documents: docs, NextCursor: string(b), HasMore: true}, nil
		}

		doc, err := c.buildDocument(e)
		if err != nil {
			// Unreadable or unsupported file: skip, the rest of the batch
			// still indexes.
			next = cursor{ModTime: e.modTime, Path: e.path}
			continue
		}
		docs = append(docs, *doc)
		next = cursor{ModTime: e.modTime, Path: e.path}
	}

	b, _ := json.Marshal(next)
	return &connectors.Batch{Documents: docs, NextCursor: string(b), HasMore: false}, nil
}

func (c *Connector) listFiles() ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.WalkDir(c.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textextract.Supported(filepath.Ext(path)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, fileEntry{path: path, modTime: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %v: %w", c.cfg.Root, err, connectors.ErrSourceUnavailable)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].modTime.Before(entries[j].modTime)
		}
		return entries[i].path < entries[j].path
	})
	return entries, nil
}

func (c *Connector) buildDocument(e fileEntry) (*connectors.RawDocument, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", e.path, err)
	}

	extracted, err := textextract.Extract(f, info.Size(), filepath.Ext(e.path))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", e.path, err)
	}

	rel, err := filepath.Rel(c.cfg.Root, e.path)
	if err != nil {
		rel = e.path
	}

	return &connectors.RawDocument{
		ID:          "filestore:" + rel,
		Title:       filepath.Base(e.path),
		Link:        "file://" + e.path,
		Content:     extracted.Content,
		UpdatedAt:   e.modTime,
		Metadata:    map[string]string{"path": rel},
		Tags:        map[string]string{"ext": strings.TrimPrefix(filepath.Ext(e.path), ".")},
		Permissions: c.sidecarPermissions(filepath.Dir(e.path)),
	}, nil
}

type sidecar struct {
	Public     bool     `json:"public"`
	Principals []string `json:"principals"`
	Groups     []string `json:"groups"`
}

// sidecarPermissions reads the nearest ".access.json" at or above dir, up to
// the configured root. No sidecar means no declared access.
func (c *Connector) sidecarPermissions(dir string) *connectors.PermissionSet {
	root := filepath.Clean(c.cfg.Root)
	for {
		data, err := os.ReadFile(filepath.Join(dir, ".access.json"))
		if err == nil {
			var sc sidecar
			if err := json.Unmarshal(data, &sc); err != nil {
				return &connectors.PermissionSet{Complete: false}
			}
			return &connectors.PermissionSet{
				IsPublic:   sc.Public,
				Principals: sc.Principals,
				Groups:     sc.Groups,
				Complete:   true,
			}
		}
		if dir == root || dir == filepath.Dir(dir) {
			return &connectors.PermissionSet{Complete: false}
		}
		dir = filepath.Dir(dir)
	}
}
