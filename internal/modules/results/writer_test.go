package results

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/backtester/internal/domain"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir, zerolog.Nop())

	paths, err := w.Write("momentum", sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 5)
	assert.Equal(t, filepath.Join(dir, "momentum_backtest.csv"), paths[0])
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	execs := readCSV(t, paths[0])
	require.Len(t, execs, 6)
	assert.Equal(t, "date", execs[0][0])
	assert.Equal(t, []string{"2020-05-10", "A", "sell", "", "25", "25", "1500", "60", "0", "0", "false"}, execs[3])

	totals := readCSV(t, paths[1])
	assert.Equal(t, [][]string{{"datetime", "total"}, {"2020-05-07", "1000"}, {"2020-05-10", "2160"}}, totals)

	led := readCSV(t, paths[2])
	require.Len(t, led, 6)
	assert.Equal(t, "", led[1][5], "buys have no gain")
	assert.Equal(t, "900", led[3][5])
	assert.Equal(t, "true", led[5][10])
}

func TestWriter_DailyStateDumps(t *testing.T) {
	paths, err := NewWriter(t.TempDir(), zerolog.Nop()).Write("run", sampleResult())
	require.NoError(t, err)

	data, err := os.ReadFile(paths[3])
	require.NoError(t, err)
	var fromJSON map[string]domain.PortfolioState
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	require.Contains(t, fromJSON, "2020-05-10")
	assert.Equal(t, 2160.0, fromJSON["2020-05-10"].Total)
	assert.Equal(t, domain.Shares(34), fromJSON["2020-05-10"].Holdings["B"].NumShares)

	data, err = os.ReadFile(paths[4])
	require.NoError(t, err)
	var fromMsgpack map[string]domain.PortfolioState
	require.NoError(t, msgpack.Unmarshal(data, &fromMsgpack))
	assert.Equal(t, 60.0, fromMsgpack["2020-05-10"].Cash)
	assert.Equal(t, 100.0, fromMsgpack["2020-05-10"].Holdings["C"].Close)
}
