// Package dataset loads raw sensor readings from the store, cleans them and
// exposes the result as an immutable Dataset.
package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeLayout is the layout of reading ids and of every fecha value the
// service parses or prints (%Y-%m-%d %H:%M:%S).
const TimeLayout = "2006-01-02 15:04:05"

// Column names of the cleaned dataset.
const (
	ColumnFecha       = "fecha"
	ColumnTemperatura = "temperatura"
	ColumnHumedad     = "humedad"
)

// Reading is a raw record as stored. All fields are text.
type Reading struct {
	ID          string
	Temperatura string
	Humedad     string
}

// Record is a cleaned reading.
type Record struct {
	Index       int       `json:"index"`
	Fecha       time.Time `json:"fecha"`
	Temperatura float64   `json:"temperatura"`
	Humedad     float64   `json:"humedad"`
}

// Dataset is an immutable, sorted and outlier-filtered sequence of records.
type Dataset struct {
	records []Record
}

// New builds a Dataset from already-cleaned records. The slice is copied.
func New(records []Record) *Dataset {
	out := make([]Record, len(records))
	copy(out, records)
	return &Dataset{records: out}
}

// Records returns a copy of the records.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

func (d *Dataset) Len() int {
	return len(d.records)
}

// ColumnStats summarizes one numeric column.
type ColumnStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Summary describes the dataset for prompts and status endpoints.
type Summary struct {
	Rows        int         `json:"rows"`
	From        time.Time   `json:"from"`
	To          time.Time   `json:"to"`
	Temperatura ColumnStats `json:"temperatura"`
	Humedad     ColumnStats `json:"humedad"`
}

func (d *Dataset) Summary() Summary {
	s := Summary{Rows: len(d.records)}
	if len(d.records) == 0 {
		return s
	}
	s.From = d.records[0].Fecha
	s.To = d.records[len(d.records)-1].Fecha

	temp := ColumnStats{Min: math.Inf(1), Max: math.Inf(-1)}
	hum := ColumnStats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, r := range d.records {
		temp.Min = math.Min(temp.Min, r.Temperatura)
		temp.Max = math.Max(temp.Max, r.Temperatura)
		temp.Mean += r.Temperatura
		hum.Min = math.Min(hum.Min, r.Humedad)
		hum.Max = math.Max(hum.Max, r.Humedad)
		hum.Mean += r.Humedad
	}
	n := float64(len(d.records))
	temp.Mean /= n
	hum.Mean /= n
	s.Temperatura = temp
	s.Humedad = hum
	return s
}

// String renders the summary as plain text for model prompts.
func (s Summary) String() string {
	if s.Rows == 0 {
		return "The dataset is empty."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Columns: %s (timestamp, format %s), %s (float, °C), %s (float, %%)\n",
		ColumnFecha, TimeLayout, ColumnTemperatura, ColumnHumedad)
	fmt.Fprintf(&sb, "Rows: %d\n", s.Rows)
	fmt.Fprintf(&sb, "Time range: %s to %s\n", s.From.Format(TimeLayout), s.To.Format(TimeLayout))
	fmt.Fprintf(&sb, "%s: min %.2f, max %.2f, mean %.2f\n", ColumnTemperatura, s.Temperatura.Min, s.Temperatura.Max, s.Temperatura.Mean)
	fmt.Fprintf(&sb, "%s: min %.2f, max %.2f, mean %.2f", ColumnHumedad, s.Humedad.Min, s.Humedad.Max, s.Humedad.Mean)
	return sb.String()
}
