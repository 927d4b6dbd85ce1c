package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/thinkdocs/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type cliHarness struct {
	t   *testing.T
	db  string
	out bytes.Buffer
}

func newHarness(t *testing.T) *cliHarness {
	return &cliHarness{t: t, db: filepath.Join(t.TempDir(), "db")}
}

// run executes one CLI invocation against the harness database with the
// mock encoder and returns its stdout.
func (h *cliHarness) run(args ...string) (string, error) {
	h.out.Reset()
	base := []string{"thinkdocs", "--log-level", "error", "--db", h.db, "--embed-provider", "mock", "--embedding-dim", "16"}
	err := newApp(&h.out).Run(append(base, args...))
	return h.out.String(), err
}

func (h *cliHarness) writeDoc(name string, paragraphs int) string {
	h.t.Helper()
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := make([]string, paragraphs)
	for p := range parts {
		words := make([]string, 40)
		for i := range words {
			words[i] = fmt.Sprintf("%s%dz%d", stem, p, i)
		}
		parts[p] = strings.Join(words, " ") + "."
	}
	path := filepath.Join(h.t.TempDir(), name)
	require.NoError(h.t, os.WriteFile(path, []byte(strings.Join(parts, "\n\n")), 0o644))
	return path
}

// firstChunk reads chunk 0 of a document straight from the database.
func (h *cliHarness) firstChunk(documentID string) string {
	h.t.Helper()
	db, err := badger.OpenDB(h.db, false)
	require.NoError(h.t, err)
	defer db.Close()

	store, err := db.Open(context.Background())
	require.NoError(h.t, err)
	chunks, err := store.GetChunks(context.Background(), documentID)
	require.NoError(h.t, err)
	require.NotEmpty(h.t, chunks)
	return chunks[0].Content
}

func fields(line string) []string {
	return strings.Split(strings.TrimSpace(line), "\t")
}

func TestAppDefinition(t *testing.T) {
	app := newApp(&bytes.Buffer{})

	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"register", "process", "ingest", "sweep", "reembed", "search", "chunks", "jobs"}, names)

	t.Run("log-level defaults to info", func(t *testing.T) {
		var levelFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "log-level" {
				levelFlag = f
			}
		}
		require.NotNil(t, levelFlag)
		assert.Equal(t, "info", levelFlag.Value)
	})
}

func TestInvalidLogLevel(t *testing.T) {
	h := newHarness(t)
	err := newApp(&h.out).Run([]string{"thinkdocs", "--log-level", "chatty", "jobs", "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
}

func TestIngestRequiresOwner(t *testing.T) {
	if os.Getenv("THINKDOCS_OWNER") != "" {
		t.Skip("THINKDOCS_OWNER is set")
	}
	h := newHarness(t)
	_, err := h.run("ingest", h.writeDoc("a.txt", 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestIngestWorkflow(t *testing.T) {
	h := newHarness(t)
	first := h.writeDoc("first.txt", 5)
	second := h.writeDoc("second.txt", 6)

	out, err := h.run("ingest", "--owner", "owner-1", "--workers", "2", first, second)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	ids := make([]string, 2)
	for i, line := range lines {
		f := fields(line)
		require.GreaterOrEqual(t, len(f), 4, line)
		assert.Equal(t, "completed", f[1])
		ids[i] = f[2]
	}
	assert.Equal(t, first, fields(lines[0])[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.FileExists(t, first, "ingest must not remove local inputs")
	assert.FileExists(t, second, "ingest must not remove local inputs")

	t.Run("chunks", func(t *testing.T) {
		out, err := h.run("chunks", ids[0])
		require.NoError(t, err)
		chunkLines := strings.Split(strings.TrimSpace(out), "\n")
		assert.GreaterOrEqual(t, len(chunkLines), 2)
		assert.True(t, strings.HasPrefix(chunkLines[0], "0\t"))
	})

	t.Run("jobs", func(t *testing.T) {
		out, err := h.run("jobs", ids[1])
		require.NoError(t, err)
		jobLines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, jobLines, 2)
		assert.Equal(t, []string{ids[1], "second.txt", "completed"}, fields(jobLines[0]))
		assert.Equal(t, "completed", fields(jobLines[1])[1])
	})

	t.Run("search", func(t *testing.T) {
		content := h.firstChunk(ids[0])
		out, err := h.run("search", "--owner", "owner-1", "--limit", "3", content)
		require.NoError(t, err)
		hits := strings.Split(strings.TrimSpace(out), "\n")
		require.NotEmpty(t, hits)
		assert.Equal(t, "first.txt#0", fields(hits[0])[1])

		out, err = h.run("search", "--owner", "owner-2", content)
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(out))
	})

	t.Run("reembed", func(t *testing.T) {
		_, err := h.run("reembed", "--batch-size", "2", "--document", ids[0])
		require.NoError(t, err)
	})

	t.Run("sweep finds nothing stale", func(t *testing.T) {
		out, err := h.run("sweep")
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(out))
	})
}

func TestRegisterThenProcess(t *testing.T) {
	h := newHarness(t)
	path := h.writeDoc("later.txt", 5)

	out, err := h.run("register", "--owner", "owner-1", path)
	require.NoError(t, err)
	f := fields(out)
	require.Len(t, f, 2)
	id := f[0]
	assert.Equal(t, path, f[1])

	out, err = h.run("jobs", id)
	require.NoError(t, err)
	assert.Equal(t, []string{id, "later.txt", "processing"}, fields(out))

	out, err = h.run("sweep", "--stale-after", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "document\t"+id)

	// the sweeper failed it, so processing is now a duplicate delivery
	out, err = h.run("process", id)
	require.NoError(t, err)
	assert.Contains(t, out, "already processed")
}

func TestProcessUnknownDocument(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("process", "missing-doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 documents failed")
	assert.Contains(t, out, "ValidationError")
}

func TestRegisterMissingFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("register", "--owner", "owner-1", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files could not be registered")
}

func TestReembedValidatesFlags(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("reembed", "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch-size")
}

func TestCommandsRequireArguments(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"process"},
		{"chunks"},
		{"jobs"},
		{"search", "--owner", "owner-1"},
		{"register", "--owner", "owner-1"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := h.run(args...)
			assert.Error(t, err)
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t\tc", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	assert.Equal(t, "abcdef", preview("abcdef", 0))
}
