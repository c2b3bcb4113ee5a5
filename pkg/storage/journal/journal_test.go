package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rexliu/glwatch/pkg/core"
)

func TestJournalAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	j, err := Open(path, 0)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(context.Background(), core.Sample{ID: "a", Timestamp: ts, Ethernet: core.LinkState{Available: true, Used: true}}))
	require.NoError(t, j.Record(context.Background(), core.Sample{ID: "b", Timestamp: ts.Add(time.Minute), Tethering: core.LinkState{Available: true}}))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []core.Sample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s core.Sample
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &s))
		got = append(got, s)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.True(t, got[0].Ethernet.Used)
	require.True(t, got[1].Tethering.Available)
	require.True(t, got[1].Timestamp.Equal(ts.Add(time.Minute)))
}
