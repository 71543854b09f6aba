package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBarsCSV(t *testing.T) {
	in := `timestamp,open,high,low,close,volume
2024-03-04 09:30:00,440.1,441.0,439.8,440.5,12000
2024-03-04T09:31,440.5,440.9,440.2,440.7,9000
not-a-time,1,1,1,1,1
`
	bars, skipped, err := readBarsCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, 440.5, bars[0].Close)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 31, 0, 0, time.UTC), bars[1].Timestamp)
	assert.Equal(t, 9000.0, bars[1].Volume)
}

func TestReadBarsCSV_Errors(t *testing.T) {
	_, _, err := readBarsCSV(strings.NewReader("2024-03-04 09:30:00,1,2,3\n"))
	assert.ErrorContains(t, err, "want 6 columns")

	_, _, err = readBarsCSV(strings.NewReader("2024-03-04 09:30:00,1,2,x,3,4\n"))
	assert.ErrorContains(t, err, "column 4")
}
