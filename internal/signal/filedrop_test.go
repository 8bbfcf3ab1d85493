package signal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFileDrop_PollAndAck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("receipt for $12.00"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	src := NewFileDrop(dir).WithSettle(0)
	sigs, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.Equal(t, "a.md", sigs[0].Subject)
	assert.Equal(t, "hello", sigs[0].Text)
	assert.Equal(t, "a.md", sigs[0].Meta["filename"])
	assert.Contains(t, sigs[0].ID, "file_drop:a.md:")
	assert.Equal(t, "b.txt", sigs[1].Subject)

	require.NoError(t, src.Ack(context.Background(), sigs[0]))
	_, err = os.Stat(filepath.Join(dir, processedDir, "a."+sigs[0].Meta["hash"]+".md"))
	assert.NoError(t, err)

	sigs, err = src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "b.txt", sigs[0].Subject)
}

func TestFileDrop_SameNameNewContentIsNewSignal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	src := NewFileDrop(dir).WithSettle(0)

	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))
	first, err := src.Poll(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0644))
	second, err := src.Poll(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first[0].ID, second[0].ID)
}

func TestFileDrop_AckKeepsEarlierDropsOfSameName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	src := NewFileDrop(dir).WithSettle(0)
	ctx := context.Background()

	for _, content := range []string{"first", "second"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		sigs, err := src.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, sigs, 1)
		require.NoError(t, src.Ack(ctx, sigs[0]))
	}

	entries, err := os.ReadDir(filepath.Join(dir, processedDir))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var contents []string
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "note."), "unexpected name %q", e.Name())
		assert.True(t, strings.HasSuffix(e.Name(), ".txt"), "unexpected name %q", e.Name())
		data, err := os.ReadFile(filepath.Join(dir, processedDir, e.Name()))
		require.NoError(t, err)
		contents = append(contents, string(data))
	}
	assert.ElementsMatch(t, []string{"first", "second"}, contents)
}

func TestProcessedName(t *testing.T) {
	assert.Equal(t, "report.1a2b.pdf", processedName("report.pdf", "1a2b"))
	assert.Equal(t, "README.1a2b", processedName("README", "1a2b"))
	assert.Equal(t, "report.pdf", processedName("report.pdf", ""))
}

func TestFileDrop_SkipsUnsettledFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.txt"), []byte("x"), 0644))

	src := NewFileDrop(dir).WithSettle(time.Hour)
	sigs, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFileDrop_MissingDir(t *testing.T) {
	src := NewFileDrop(filepath.Join(t.TempDir(), "nope"))
	sigs, err := src.Poll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFileDrop_AckWithoutFilename(t *testing.T) {
	src := NewFileDrop(t.TempDir())
	assert.Error(t, src.Ack(context.Background(), Signal{ID: "x"}))
}

func TestFileDrop_WatchWakes(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	src := NewFileDrop(dir).WithSettle(20 * time.Millisecond)
	require.NoError(t, src.Watch(context.Background()))
	require.NoError(t, src.Watch(context.Background()), "second Watch is a no-op")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.txt"), []byte("hi"), 0644))

	select {
	case <-src.Wake():
	case <-time.After(3 * time.Second):
		t.Fatal("expected a wake-up after a file was dropped")
	}

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
