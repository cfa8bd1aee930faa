package textextract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	data := []byte("  hello world\n")
	got, err := Extract(bytes.NewReader(data), int64(len(data)), ".txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, 1, got.Pages)
}

func TestExtractMarkdownByMIME(t *testing.T) {
	data := []byte("# title")
	got, err := Extract(bytes.NewReader(data), int64(len(data)), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "# title", got.Content)
}

func TestExtractDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:p><w:r><w:t>first para</w:t></w:r></w:p><w:p><w:r><w:t>second para</w:t></w:r></w:p></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	data := buf.Bytes()
	got, err := Extract(bytes.NewReader(data), int64(len(data)), ".docx")
	require.NoError(t, err)
	assert.Equal(t, "first para\nsecond para", got.Content)
}

func TestExtractUnsupportedType(t *testing.T) {
	data := []byte("x")
	_, err := Extract(bytes.NewReader(data), int64(len(data)), ".png")
	require.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported("docx"))
	assert.True(t, Supported("text/plain"))
	assert.False(t, Supported(".png"))
	assert.False(t, Supported(""))
}
