package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"transit-batch-planner/internal/domain"
)

// Required OD table columns. Anything else in the header is carried through
// to the output untouched.
const (
	colFromID  = "from_id"
	colFromLon = "from_lon"
	colFromLat = "from_lat"
	colToID    = "to_id"
	colToLon   = "to_lon"
	colToLat   = "to_lat"
)

// Table is a fully parsed OD input table.
type Table struct {
	Header []string
	Pairs  []domain.ODPair
}

// ReadPairs loads the delimited OD table at path. Row numbers are 1-based
// over the data rows, matching the positions recorded in the run journal.
func ReadPairs(path string, delimiter rune, encodingName string) (*Table, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open od table: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if enc != nil {
		src = enc.NewDecoder().Reader(f)
	}

	r := csv.NewReader(src)
	r.Comma = delimiter

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read od table header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "﻿")

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	cols, err := requiredColumns(idx)
	if err != nil {
		return nil, err
	}

	tbl := &Table{Header: header}
	for row := 1; ; row++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read od table row %d: %w", row, err)
		}

		pair, err := parsePair(row, record, cols)
		if err != nil {
			return nil, err
		}
		tbl.Pairs = append(tbl.Pairs, pair)
	}

	return tbl, nil
}

type columnSet struct {
	fromID, fromLon, fromLat int
	toID, toLon, toLat       int
}

func requiredColumns(idx map[string]int) (columnSet, error) {
	var cols columnSet
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{colFromID, &cols.fromID},
		{colFromLon, &cols.fromLon},
		{colFromLat, &cols.fromLat},
		{colToID, &cols.toID},
		{colToLon, &cols.toLon},
		{colToLat, &cols.toLat},
	} {
		i, ok := idx[c.name]
		if !ok {
			return cols, fmt.Errorf("od table is missing column %q", c.name)
		}
		*c.dst = i
	}
	return cols, nil
}

func parsePair(row int, record []string, cols columnSet) (domain.ODPair, error) {
	from, err := parseCoords(record[cols.fromLon], record[cols.fromLat])
	if err != nil {
		return domain.ODPair{}, fmt.Errorf("od table row %d origin: %w", row, err)
	}
	to, err := parseCoords(record[cols.toLon], record[cols.toLat])
	if err != nil {
		return domain.ODPair{}, fmt.Errorf("od table row %d destination: %w", row, err)
	}

	raw := make([]string, len(record))
	copy(raw, record)

	return domain.ODPair{
		Row:    row,
		FromID: strings.TrimSpace(record[cols.fromID]),
		From:   from,
		ToID:   strings.TrimSpace(record[cols.toID]),
		To:     to,
		Raw:    raw,
	}, nil
}

func parseCoords(lon, lat string) (domain.Coordinates, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("bad longitude %q", lon)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("bad latitude %q", lat)
	}

	c := domain.Coordinates{Lon: x, Lat: y}
	if err := c.Validate(); err != nil {
		return domain.Coordinates{}, err
	}
	return c, nil
}
