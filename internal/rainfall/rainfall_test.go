package rainfall

import (
	"bytes"
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climate.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE hourly (climate_id TEXT, datetime TEXT, value REAL, flag TEXT)`)
	require.NoError(t, err)
	rows := []struct {
		id, ts string
		value  any
		flag   any
	}{
		{"6105976", "2020-06-01 01:00:00", 1.5, nil},
		{"6105976", "2020-06-01 02:00:00", "M", "M"},
		{"6105976", "2020-06-01 03:00:00", 0.2, "T"},
		{"7000000", "2020-06-01 01:00:00", 9.0, nil},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO hourly VALUES (?, ?, ?, ?)`, r.id, r.ts, r.value, r.flag)
		require.NoError(t, err)
	}
	return path
}

func TestLoadSQLite(t *testing.T) {
	path := seedDB(t)

	recs, err := LoadSQLite(context.Background(), path, "hourly", "6105976")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "6105976", recs[0].ClimateID)
	assert.Equal(t, at(2020, time.June, 1, 1), recs[0].Time)
	assert.Equal(t, 1.5, recs[0].Value)
	assert.True(t, math.IsNaN(recs[1].Value), "non-numeric value should load as NaN")
	assert.Equal(t, "T", recs[2].Flag)
	assert.Equal(t, "", recs[0].Flag)
}

func TestLoadSQLiteRejectsBadTable(t *testing.T) {
	path := seedDB(t)
	_, err := LoadSQLite(context.Background(), path, "hourly; DROP TABLE hourly", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestClean(t *testing.T) {
	var recs []Record
	for i := 20; i >= 1; i-- {
		recs = append(recs, Record{Time: at(2020, time.July, 1, i), Value: float64(i)})
	}
	recs = append(recs,
		Record{Time: at(2020, time.July, 2, 0), Value: 1000},
		Record{Time: at(2020, time.July, 2, 1), Value: 0},
		Record{Time: at(2020, time.July, 2, 2), Value: -1},
		Record{Time: at(2020, time.July, 2, 3), Value: math.NaN()},
		Record{Time: at(2020, time.January, 5, 3), Value: 4},
	)

	opts := DefaultCleanOptions()
	opts.RemoveOutliers = true
	kept, rep := Clean(recs, opts)

	require.Len(t, kept, 20)
	assert.Equal(t, 1, rep.Outliers)
	assert.InDelta(t, 47.25, rep.UpperBound, 1e-12)
	assert.Equal(t, 20, rep.Remaining)
	for i := 1; i < len(kept); i++ {
		assert.True(t, kept[i-1].Time.Before(kept[i].Time), "records must be time sorted")
	}

	kept, rep = Clean(recs, CleanOptions{})
	assert.Len(t, kept, 22)
	assert.Zero(t, rep.Outliers)
}

func TestCleanOutlierBound(t *testing.T) {
	var recs []Record
	for i := 1; i <= 10; i++ {
		recs = append(recs, Record{Time: at(2020, time.August, 1, i), Value: float64(i)})
	}

	opts := DefaultCleanOptions()
	opts.RemoveOutliers = true
	kept, rep := Clean(recs, opts)
	assert.InDelta(t, 21.25, rep.UpperBound, 1e-12)
	assert.Zero(t, rep.Outliers)
	assert.Len(t, kept, 10)
}

func TestExtractEvents(t *testing.T) {
	recs := []Record{
		{Time: at(2020, time.June, 1, 0), Value: 1},
		{Time: at(2020, time.June, 1, 1), Value: 2},
		{Time: at(2020, time.June, 1, 2), Value: 3},
		{Time: at(2020, time.June, 1, 12), Value: 5},
		{Time: at(2020, time.June, 1, 18), Value: 1},
		{Time: at(2021, time.June, 1, 0), Value: 2},
	}
	events := ExtractEvents(recs, DefaultIETD)
	require.Len(t, events, 3)

	e := events[0]
	assert.Equal(t, 3.0, e.Duration)
	assert.Equal(t, 6.0, e.Volume)
	assert.Equal(t, 3.0, e.Peak)
	assert.Equal(t, 2.0, e.Intensity)
	assert.True(t, math.IsNaN(e.InterEvent))
	assert.Equal(t, 6.0, e.IETD)

	e = events[1]
	assert.Equal(t, at(2020, time.June, 1, 18), e.End, "a gap of exactly the IETD stays in the event")
	assert.Equal(t, 7.0, e.Duration)
	assert.Equal(t, 10.0, e.InterEvent)

	assert.True(t, math.IsNaN(events[2].InterEvent), "year change resets inter-event time")

	assert.Equal(t, []float64{6, 6, 2}, Volumes(events))
	assert.Equal(t, []float64{3, 7, 1}, Durations(events))
	assert.Nil(t, ExtractEvents(nil, DefaultIETD))
}

func TestWriteEventsCSV(t *testing.T) {
	events := ExtractEvents([]Record{
		{Time: at(2020, time.June, 1, 0), Value: 1},
		{Time: at(2020, time.June, 1, 2), Value: 3},
	}, 6)

	var buf bytes.Buffer
	require.NoError(t, WriteEventsCSV(&buf, events))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Start Time,End Time,Duration (hrs),Volume (mm),Intensity (mm/hr),Peak Precipitation (mm),Inter-Event Time (hrs),IETD (hrs)", lines[0])
	assert.Equal(t, "2020-06-01 00:00:00,2020-06-01 02:00:00,3,4,1.3333333333333333,3,,6", lines[1])
}
