package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/connectors"
)

func newConnector(t *testing.T, root string, batchSize int) connectors.Connector {
	t.Helper()
	raw, err := json.Marshal(Config{Root: root, BatchSize: batchSize})
	require.NoError(t, err)
	c, err := New(raw, "")
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func writeSidecar(t *testing.T, dir string, sc sidecar) {
	t.Helper()
	data, err := json.Marshal(sc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".access.json"), data, 0o644))
}

func TestPollIndexesSupportedFiles(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(root, "notes.txt"), "plain notes", base)
	writeFile(t, filepath.Join(root, "guide.md"), "# guide", base.Add(time.Minute))
	writeFile(t, filepath.Join(root, "image.png"), "binary", base.Add(2*time.Minute))
	writeSidecar(t, root, sidecar{Public: true})

	c := newConnector(t, root, 0)
	batch, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, batch.Documents, 2)
	assert.False(t, batch.HasMore)

	assert.Equal(t, "filestore:notes.txt", batch.Documents[0].ID)
	assert.Equal(t, "plain notes", batch.Documents[0].Content)
	assert.Equal(t, "notes.txt", batch.Documents[0].Title)
	assert.Equal(t, "txt", batch.Documents[0].Tags["ext"])
	assert.Equal(t, "filestore:guide.md", batch.Documents[1].ID)
}

func TestPollResumesFromCursor(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, filepath.Join(root, name), name, base.Add(time.Duration(i)*time.Minute))
	}
	writeSidecar(t, root, sidecar{Public: true})

	c := newConnector(t, root, 2)

	first, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first.Documents, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "filestore:a.txt", first.Documents[0].ID)
	assert.Equal(t, "filestore:b.txt", first.Documents[1].ID)

	second, err := c.Poll(context.Background(), first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Documents, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "filestore:c.txt", second.Documents[0].ID)
}

func TestSidecarPermissionsInherit(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	writeSidecar(t, root, sidecar{Principals: []string{"u1"}, Groups: []string{"eng"}})

	sub := filepath.Join(root, "team", "docs")
	writeFile(t, filepath.Join(sub, "plan.txt"), "the plan", mtime)

	c := newConnector(t, root, 0)
	batch, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, batch.Documents, 1)

	perms := batch.Documents[0].Permissions
	require.NotNil(t, perms)
	assert.True(t, perms.Complete)
	assert.False(t, perms.IsPublic)
	assert.Equal(t, []string{"u1"}, perms.Principals)
	assert.Equal(t, []string{"eng"}, perms.Groups)
}

func TestNearestSidecarWins(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	writeSidecar(t, root, sidecar{Public: true})

	restricted := filepath.Join(root, "hr")
	writeFile(t, filepath.Join(restricted, "salaries.txt"), "numbers", mtime)
	writeSidecar(t, restricted, sidecar{Principals: []string{"hr-lead"}})

	c := newConnector(t, root, 0)
	batch, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, batch.Documents, 1)

	perms := batch.Documents[0].Permissions
	require.NotNil(t, perms)
	assert.False(t, perms.IsPublic)
	assert.Equal(t, []string{"hr-lead"}, perms.Principals)
}

func TestNoSidecarFailsClosed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "orphan.txt"), "text", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	c := newConnector(t, root, 0)
	batch, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, batch.Documents, 1)

	perms := batch.Documents[0].Permissions
	require.NotNil(t, perms)
	assert.False(t, perms.Complete)
}

func TestMalformedSidecarFailsClosed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.txt"), "text", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".access.json"), []byte("{not json"), 0o644))

	c := newConnector(t, root, 0)
	batch, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, batch.Documents, 1)
	assert.False(t, batch.Documents[0].Permissions.Complete)
}

func TestMissingRootIsSourceUnavailable(t *testing.T) {
	c := newConnector(t, filepath.Join(t.TempDir(), "gone"), 0)
	_, err := c.Poll(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, connectors.ErrSourceUnavailable)
	assert.True(t, connectors.Retryable(err))
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(json.RawMessage(`{}`), "")
	require.Error(t, err)
}
