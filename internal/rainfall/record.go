package rainfall

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one hourly gauge reading.
type Record struct {
	ClimateID string
	Time      time.Time
	Value     float64
	Flag      string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadSQLite reads the readings of one station from table. Values that
// are not numeric load as NaN and are removed by Clean.
func LoadSQLite(ctx context.Context, dbPath, table, climateID string) ([]Record, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT climate_id, datetime, value, flag FROM %s WHERE climate_id = ?", table)
	rows, err := db.QueryContext(ctx, query, climateID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id, ts, value any
			flag          sql.NullString
		)
		if err := rows.Scan(&id, &ts, &value, &flag); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
		}
		out = append(out, Record{
			ClimateID: asString(id),
			Time:      t,
			Value:     asFloat(value),
			Flag:      flag.String,
		})
	}
	return out, rows.Err()
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case []byte:
		return asFloat(string(x))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func parseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return parseTime(string(x))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized datetime %q", x)
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime type %T", v)
	}
}
