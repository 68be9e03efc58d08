package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestWriterAppendFlushOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := Create(path, ';', "utf-8", []string{"a", "b"})
	require.NoError(t, err)

	headerOnly, err := w.Flush()
	require.NoError(t, err)
	assert.Equal(t, int64(len("a;b\n")), headerOnly)

	require.NoError(t, w.Append([]string{"1", "x"}))
	afterOne, err := w.Flush()
	require.NoError(t, err)
	assert.Equal(t, headerOnly+int64(len("1;x\n")), afterOne)

	require.NoError(t, w.Append([]string{"2", "y"}))
	_, err = w.Flush()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;x\n2;y\n", string(data))
}

func TestWriterResumeTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := Create(path, ';', "utf-8", []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, w.Append([]string{"1", "x"}))
	committed, err := w.Flush()
	require.NoError(t, err)
	// Appended but never committed to the journal; a resume must drop it.
	require.NoError(t, w.Append([]string{"2", "orphan"}))
	_, err = w.Flush()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Resume(path, ';', "utf-8", committed)
	require.NoError(t, err)
	require.NoError(t, r.Append([]string{"2", "y"}))
	_, err = r.Flush()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;x\n2;y\n", string(data))
}

func TestWriterLatin1RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := Create(path, ';', "latin-1", []string{"id", "name"})
	require.NoError(t, err)
	require.NoError(t, w.Append([]string{"1", "Gràcia"}))
	_, err = w.Flush()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Gr\xe0cia")

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "Gràcia")
}

func TestCreateUnsupportedEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := Create(path, ';', "koi8-r", []string{"a"})
	require.Error(t, err)
}
