package mcpserver

import (
	"embed"
	"encoding/csv"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed datasets/*.csv
var datasetFiles embed.FS

// Dataset is a small in-memory table.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ColumnStats summarises one column. Numeric columns fill the numeric
// fields; other columns fill Unique, Top and Freq.
type ColumnStats struct {
	Column string   `json:"column"`
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean,omitempty"`
	Std    *float64 `json:"std,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Q25    *float64 `json:"25%,omitempty"`
	Median *float64 `json:"50%,omitempty"`
	Q75    *float64 `json:"75%,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Unique *int     `json:"unique,omitempty"`
	Top    string   `json:"top,omitempty"`
	Freq   *int     `json:"freq,omitempty"`
}

// LoadDatasets reads the embedded tables, keyed by file name without
// extension.
func LoadDatasets() (map[string]*Dataset, error) {
	entries, err := datasetFiles.ReadDir("datasets")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Dataset, len(entries))
	for _, e := range entries {
		f, err := datasetFiles.Open(path.Join("datasets", e.Name()))
		if err != nil {
			return nil, err
		}
		records, err := csv.NewReader(f).ReadAll()
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if len(records) == 0 {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		out[name] = &Dataset{Name: name, Columns: records[0], Rows: records[1:]}
	}
	return out, nil
}

// Describe computes per-column statistics. A column is numeric when every
// non-empty value parses as a float.
func (d *Dataset) Describe() []ColumnStats {
	stats := make([]ColumnStats, 0, len(d.Columns))
	for i, col := range d.Columns {
		values := make([]string, 0, len(d.Rows))
		for _, row := range d.Rows {
			if i < len(row) && row[i] != "" {
				values = append(values, row[i])
			}
		}
		if nums, ok := parseFloats(values); ok {
			stats = append(stats, numericStats(col, nums))
		} else {
			stats = append(stats, categoricalStats(col, values))
		}
	}
	return stats
}

func parseFloats(values []string) ([]float64, bool) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, len(out) > 0
}

func numericStats(col string, nums []float64) ColumnStats {
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)

	var sum float64
	for _, n := range nums {
		sum += n
	}
	mean := sum / float64(len(nums))
	var sq float64
	for _, n := range nums {
		sq += (n - mean) * (n - mean)
	}
	std := math.NaN()
	if len(nums) > 1 {
		std = math.Sqrt(sq / float64(len(nums)-1))
	}

	s := ColumnStats{
		Column: col,
		Count:  len(nums),
		Mean:   ptr(round(mean)),
		Min:    ptr(sorted[0]),
		Q25:    ptr(round(quantile(sorted, 0.25))),
		Median: ptr(round(quantile(sorted, 0.5))),
		Q75:    ptr(round(quantile(sorted, 0.75))),
		Max:    ptr(sorted[len(sorted)-1]),
	}
	if !math.IsNaN(std) {
		s.Std = ptr(round(std))
	}
	return s
}

func categoricalStats(col string, values []string) ColumnStats {
	counts := map[string]int{}
	top, freq := "", 0
	for _, v := range values {
		counts[v]++
		if counts[v] > freq {
			top, freq = v, counts[v]
		}
	}
	s := ColumnStats{Column: col, Count: len(values), Unique: ptr(len(counts))}
	if freq > 0 {
		s.Top, s.Freq = top, ptr(freq)
	}
	return s
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func round(f float64) float64 { return math.Round(f*1e6) / 1e6 }

func ptr[T any](v T) *T { return &v }
