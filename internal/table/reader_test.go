package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadPairs(t *testing.T) {
	path := writeFile(t, "od.csv", []byte(
		"from_id;from_lon;from_lat;to_id;to_lon;to_lat;zone\n"+
			"a1;2.1734;41.3851;b1;2.1900;41.4000;north\n"+
			"a2;2.1500;41.3700;b2;2.1600;41.3800;south\n"))

	tbl, err := ReadPairs(path, ';', "utf-8")
	require.NoError(t, err)

	require.Len(t, tbl.Pairs, 2)
	assert.Equal(t, []string{"from_id", "from_lon", "from_lat", "to_id", "to_lon", "to_lat", "zone"}, tbl.Header)

	first := tbl.Pairs[0]
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, "a1", first.FromID)
	assert.Equal(t, "b1", first.ToID)
	assert.InDelta(t, 2.1734, first.From.Lon, 1e-9)
	assert.InDelta(t, 41.3851, first.From.Lat, 1e-9)
	assert.InDelta(t, 41.4000, first.To.Lat, 1e-9)
	assert.Equal(t, []string{"a1", "2.1734", "41.3851", "b1", "2.1900", "41.4000", "north"}, first.Raw)

	assert.Equal(t, 2, tbl.Pairs[1].Row)
	assert.Equal(t, "a2", tbl.Pairs[1].FromID)
}

func TestReadPairsStripsByteOrderMark(t *testing.T) {
	path := writeFile(t, "od.csv", []byte(
		"﻿from_id,from_lon,from_lat,to_id,to_lon,to_lat\n"+
			"a,1.0,2.0,b,3.0,4.0\n"))

	tbl, err := ReadPairs(path, ',', "")
	require.NoError(t, err)
	assert.Equal(t, "from_id", tbl.Header[0])
	require.Len(t, tbl.Pairs, 1)
}

func TestReadPairsMissingColumn(t *testing.T) {
	path := writeFile(t, "od.csv", []byte(
		"from_id;from_lon;from_lat;to_id;to_lon\n"+
			"a;1;2;b;3\n"))

	_, err := ReadPairs(path, ';', "utf-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to_lat")
}

func TestReadPairsBadCoordinate(t *testing.T) {
	path := writeFile(t, "od.csv", []byte(
		"from_id;from_lon;from_lat;to_id;to_lon;to_lat\n"+
			"a;1.0;2.0;b;3.0;4.0\n"+
			"c;not-a-number;2.0;d;3.0;4.0\n"))

	_, err := ReadPairs(path, ';', "utf-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadPairsCoordinateOutOfRange(t *testing.T) {
	path := writeFile(t, "od.csv", []byte(
		"from_id;from_lon;from_lat;to_id;to_lon;to_lat\n"+
			"a;2.17;41.38;b;3.0;94.2\n"))

	_, err := ReadPairs(path, ';', "utf-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 destination")
	assert.Contains(t, err.Error(), "latitude")
}

func TestReadPairsWindows1252(t *testing.T) {
	// "Müller" with 0xFC for ü, as written by legacy spreadsheet exports.
	raw := []byte("from_id;from_lon;from_lat;to_id;to_lon;to_lat\n")
	raw = append(raw, []byte("M\xfcller;2.17;41.38;sants;2.14;41.37\n")...)
	path := writeFile(t, "od.csv", raw)

	tbl, err := ReadPairs(path, ';', "windows-1252")
	require.NoError(t, err)
	require.Len(t, tbl.Pairs, 1)
	assert.Equal(t, "Müller", tbl.Pairs[0].FromID)
}

func TestReadPairsUnsupportedEncoding(t *testing.T) {
	path := writeFile(t, "od.csv", []byte("from_id\n"))
	_, err := ReadPairs(path, ';', "utf-16")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "utf-16")
}
