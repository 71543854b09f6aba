package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"FinSim/internal/domain/models"
)

// readBarsCSV reads timestamp,open,high,low,close,volume rows. A leading
// header row is skipped. Rows with unparseable timestamps are dropped and
// counted.
func readBarsCSV(r io.Reader) ([]models.Bar, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var raw []models.RawBar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 6 {
			return nil, 0, fmt.Errorf("line %d: want 6 columns, got %d", line, len(rec))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "timestamp") {
			continue
		}

		var vals [5]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, 0, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			vals[i] = v
		}
		raw = append(raw, models.RawBar{
			Timestamp: rec[0],
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	bars, skipped := models.ParseRawBars(raw)
	return bars, skipped, nil
}

func readBarsFile(path string) ([]models.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return readBarsCSV(f)
}
