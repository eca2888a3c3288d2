package dataset

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// TemperatureThreshold is the exclusive upper bound on the absolute
	// temperatura difference between adjacent cleaned records.
	TemperatureThreshold = 2.0
	// HumidityThreshold is the exclusive upper bound on the absolute humedad
	// difference between adjacent cleaned records.
	HumidityThreshold = 5.0
)

var (
	errMissing    = errors.New("value is missing")
	errNotFinite  = errors.New("value is not a finite number")
	errNotNumeric = errors.New("value is not numeric")
)

// CleanStats counts what happened to the raw readings during Clean.
type CleanStats struct {
	Raw                 int
	InvalidTime         int
	TemperatureOutliers int
	HumidityOutliers    int
	Kept                int
}

// ParseTime parses s with TimeLayout. Invalid input yields the zero time and
// false, which is the not-a-time value used throughout the service.
func ParseTime(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type row struct {
	fecha time.Time
	valid bool
	temp  float64
	hum   float64
}

// Clean converts raw readings into the cleaned, sorted and outlier-filtered
// record sequence.
//
// Rows are sorted ascending by fecha with not-a-time rows last. A temperatura
// pass then keeps a row only if it differs from its immediate predecessor in
// the pass input by less than TemperatureThreshold, followed by a humedad pass
// over the result with HumidityThreshold. The first row has no predecessor and
// always passes. The two passes repeat until a round removes nothing, so both
// adjacency bounds hold on the returned sequence. Rows without a valid fecha
// are dropped last.
//
// A missing or non-numeric measure on any reading fails the whole call with a
// *LoadError.
func Clean(readings []Reading) ([]Record, CleanStats, error) {
	stats := CleanStats{Raw: len(readings)}

	rows := make([]row, 0, len(readings))
	for _, r := range readings {
		temp, err := parseMeasure(r.ID, ColumnTemperatura, r.Temperatura)
		if err != nil {
			return nil, stats, err
		}
		hum, err := parseMeasure(r.ID, ColumnHumedad, r.Humedad)
		if err != nil {
			return nil, stats, err
		}
		fecha, ok := ParseTime(r.ID)
		rows = append(rows, row{fecha: fecha, valid: ok, temp: temp, hum: hum})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.valid != b.valid {
			return a.valid
		}
		return a.valid && a.fecha.Before(b.fecha)
	})

	for {
		before := len(rows)

		var dropped int
		rows, dropped = filterAdjacent(rows, func(r row) float64 { return r.temp }, TemperatureThreshold)
		stats.TemperatureOutliers += dropped
		rows, dropped = filterAdjacent(rows, func(r row) float64 { return r.hum }, HumidityThreshold)
		stats.HumidityOutliers += dropped

		if len(rows) == before {
			break
		}
	}

	// Not-a-time rows form a suffix after sorting, so trimming them leaves
	// every remaining adjacent pair untouched.
	valid := len(rows)
	for valid > 0 && !rows[valid-1].valid {
		valid--
	}
	stats.InvalidTime = len(rows) - valid
	rows = rows[:valid]

	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = Record{
			Index:       i,
			Fecha:       r.fecha,
			Temperatura: r.temp,
			Humedad:     r.hum,
		}
	}
	stats.Kept = len(records)
	return records, stats, nil
}

// filterAdjacent keeps rows whose value differs from the row immediately
// before them in rows by strictly less than threshold, whether or not that
// row is kept. The first row is always kept.
func filterAdjacent(rows []row, value func(row) float64, threshold float64) ([]row, int) {
	if len(rows) == 0 {
		return rows, 0
	}
	out := make([]row, 0, len(rows))
	out = append(out, rows[0])
	for i := 1; i < len(rows); i++ {
		if math.Abs(value(rows[i])-value(rows[i-1])) < threshold {
			out = append(out, rows[i])
		}
	}
	return out, len(rows) - len(out)
}

func parseMeasure(id, field, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &LoadError{ID: id, Field: field, Value: raw, Err: errMissing}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &LoadError{ID: id, Field: field, Value: raw, Err: errNotNumeric}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &LoadError{ID: id, Field: field, Value: raw, Err: errNotFinite}
	}
	return v, nil
}
