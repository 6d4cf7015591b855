// Package ingest turns ADR encoder CSV exports into deduplicated training
// detail rows.
//
// The exporter writes one row per repetition. The SERIE column carries the
// set/rep pair as "S<n> R<m>", or "-" for measurements taken outside a
// declared set; sentinel rows are discarded. Each surviving row gets a
// content hash so re-sent files and overlapping exports import exactly once.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
)

// CSV columns consumed from the ADR export. Perfil and Ecuacion are present
// in the files but not imported.
var requiredColumns = []string{"SERIE", "KG", "D", "VM", "VMP", "RM", "P(W)", "Ejer.", "Atleta"}

// serieSentinel marks a measurement taken outside a declared set.
const serieSentinel = "-"

var (
	seriePattern = regexp.MustCompile(`S(\d+)`)
	repPattern   = regexp.MustCompile(`R(\d+)`)
)

// Row is one typed repetition record parsed from an ADR export.
type Row struct {
	Serie    int
	Rep      int
	Kg       float64
	D        *float64
	VM       *float64
	VMP      *float64
	RM       *float64
	PW       *float64
	Exercise string
	Athlete  string
	HashID   string
}

// ParseStats counts what happened to the input rows.
type ParseStats struct {
	Total    int // data rows in the file
	Sentinel int // "-" rows discarded
	Dropped  int // malformed rows discarded loudly
}

// ParseADR parses raw ADR CSV bytes into typed rows. Sentinel rows are
// discarded silently; rows whose SERIE or KG cell cannot be interpreted are
// dropped and counted, never zero-filled. An error is returned only for
// unreadable CSV or a header missing required columns.
func ParseADR(data []byte) ([]Row, ParseStats, error) {
	var stats ParseStats
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, stats, fmt.Errorf("CSV header missing column %q", col)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read CSV record: %w", err)
		}
		stats.Total++

		serieCell := record[idx["SERIE"]]
		if serieCell == serieSentinel {
			stats.Sentinel++
			continue
		}

		serieMatch := seriePattern.FindStringSubmatch(serieCell)
		repMatch := repPattern.FindStringSubmatch(serieCell)
		if serieMatch == nil || repMatch == nil {
			stats.Dropped++
			slog.Warn("ingest.ParseADR: dropping row with unrecognized SERIE cell", "serie", serieCell, "row", stats.Total)
			continue
		}
		serie, _ := strconv.Atoi(serieMatch[1])
		rep, _ := strconv.Atoi(repMatch[1])

		kgCell := record[idx["KG"]]
		kg, err := strconv.ParseFloat(kgCell, 64)
		if err != nil {
			stats.Dropped++
			slog.Warn("ingest.ParseADR: dropping row with unparseable KG cell", "kg", kgCell, "row", stats.Total)
			continue
		}

		// Hash over the raw post-split cells, in fixed order, before any
		// numeric coercion.
		hashCells := []string{
			serieMatch[1], repMatch[1], kgCell,
			record[idx["D"]], record[idx["VM"]], record[idx["VMP"]],
			record[idx["RM"]], record[idx["P(W)"]],
			record[idx["Ejer."]], record[idx["Atleta"]],
		}

		rows = append(rows, Row{
			Serie:    serie,
			Rep:      rep,
			Kg:       kg,
			D:        parseOptionalFloat(record[idx["D"]]),
			VM:       parseOptionalFloat(record[idx["VM"]]),
			VMP:      parseOptionalFloat(record[idx["VMP"]]),
			RM:       parseOptionalFloat(record[idx["RM"]]),
			PW:       parseOptionalFloat(record[idx["P(W)"]]),
			Exercise: record[idx["Ejer."]],
			Athlete:  record[idx["Atleta"]],
			HashID:   RowHash(hashCells),
		})
	}

	if stats.Dropped > 0 {
		slog.Warn("ingest.ParseADR: rows dropped", "dropped", stats.Dropped, "total", stats.Total)
	}
	slog.Debug("ingest.ParseADR: parse complete", "rows", len(rows), "sentinel", stats.Sentinel, "dropped", stats.Dropped)
	return rows, stats, nil
}

// parseOptionalFloat returns nil for cells that do not parse as a float.
func parseOptionalFloat(cell string) *float64 {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &f
}
