package record

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestFileWriter_PlainNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	w, err := NewFileWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(Event{Time: time.Now(), Kind: EventTurn, TurnIndex: 1}))
	require.NoError(t, w.Write(Event{Time: time.Now(), Kind: EventSignal, TurnIndex: 2, Payload: map[string]any{"kind": "repetition"}}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	require.Equal(t, EventTurn, events[0].Kind)
	require.Equal(t, EventSignal, events[1].Kind)
	require.Equal(t, 2, events[1].TurnIndex)
}

func TestFileWriter_ZstdCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson.zst")

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Event{Time: time.Now(), Kind: EventVerdict}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var ev Event
	require.NoError(t, json.NewDecoder(zr).Decode(&ev))
	require.Equal(t, EventVerdict, ev.Kind)
}

func TestFileWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Error(t, w.Write(Event{Kind: EventTurn}))
	require.NoError(t, w.Close())
}

func TestNopWriter(t *testing.T) {
	var w Writer = NopWriter{}
	require.NoError(t, w.Write(Event{Kind: EventTurn}))
	require.NoError(t, w.Close())
}
