package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	require.Equal(t, "!r:x", Key("!r:x", ""))
	require.Equal(t, "!r:x/$root", Key("!r:x", "$root"))
}

func TestSetReadMarkerIsMonotonic(t *testing.T) {
	m := New("")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, m.SetReadMarker("!r:x", ReadMarker{EventID: "$b", Timestamp: base}))
	require.False(t, m.SetReadMarker("!r:x", ReadMarker{EventID: "$a", Timestamp: base.Add(-time.Minute)}))
	require.False(t, m.SetReadMarker("!r:x", ReadMarker{EventID: "$b", Timestamp: base}))
	require.True(t, m.SetReadMarker("!r:x", ReadMarker{EventID: "$c", Timestamp: base.Add(time.Minute)}))

	got, ok := m.ReadMarker("!r:x")
	require.True(t, ok)
	require.Equal(t, "$c", got.EventID.String())

	require.False(t, m.SetReadMarker("", ReadMarker{EventID: "$d"}))
	require.False(t, m.SetReadMarker("!r:x", ReadMarker{}))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	m := New(path)
	m.SetReadMarker(Key("!r:x", ""), ReadMarker{EventID: "$a", Timestamp: ts})
	m.SetLastRoom("!r:x")
	require.NoError(t, m.Close())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	got, ok := reloaded.ReadMarker("!r:x")
	require.True(t, ok)
	require.Equal(t, "$a", got.EventID.String())
	require.True(t, got.Timestamp.Equal(ts))
	require.Equal(t, "!r:x", reloaded.LastRoom())
}

func TestDebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := New(path)
	m.SetDebounce(10 * time.Millisecond)
	m.SetReadMarker("!r:x", ReadMarker{EventID: "$a", Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Close())
}

func TestLoadMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()

	m := New(filepath.Join(dir, "missing.json"))
	require.NoError(t, m.Load())
	_, ok := m.ReadMarker("!r:x")
	require.False(t, ok)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	m = New(empty)
	require.NoError(t, m.Load())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	require.Error(t, New(bad).Load())
}
