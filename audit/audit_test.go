package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapflow/events"
)

var at = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sample(id, outcome string) events.Event {
	return events.Event{Dwell: id, UID: "1234ABCD", Outcome: outcome, From: "doing", To: "done", Ticket: 5, Card: 5, At: at}
}

func TestOpenSelectsBackend(t *testing.T) {
	j, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, j)
	assert.NoError(t, j.Record(context.Background(), sample("a", "no_action")))

	_, err = Open(Config{Type: "postgres"})
	assert.Error(t, err)

	_, err = Open(Config{Type: "file"})
	assert.Error(t, err)
}

func TestFileJournalAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	j, err := Open(Config{Type: "file", Path: path})
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), sample("a", "workflow_advance")))
	require.NoError(t, j.Close())

	// reopening appends
	j, err = Open(Config{Type: "file", Path: path})
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), sample("b", "no_action")))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e events.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		ids = append(ids, e.Dwell)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestSQLiteJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	j, err := OpenSQLite(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, sample("a", "workflow_advance")))
	require.NoError(t, j.Record(ctx, sample("b", "rejected")))
	require.NoError(t, j.Close())

	// schema creation is idempotent
	j, err = OpenSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Dwell)
	assert.Equal(t, "rejected", got[0].Outcome)
	assert.Equal(t, sample("a", "workflow_advance"), got[1])

	got, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteInMemory(t *testing.T) {
	j, err := Open(Config{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer j.Close()
	assert.NoError(t, j.Record(context.Background(), sample("a", "register_new")))
}
