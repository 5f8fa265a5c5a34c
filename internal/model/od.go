package model

import (
	"fmt"
	"math"
)

// Pair keys a zone-to-zone row.
type Pair struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.Origin, p.Destination)
}

// ComparePairs orders pairs by origin, then destination.
func ComparePairs(a, b Pair) int {
	switch {
	case a.Origin < b.Origin:
		return -1
	case a.Origin > b.Origin:
		return 1
	case a.Destination < b.Destination:
		return -1
	case a.Destination > b.Destination:
		return 1
	}
	return 0
}

// ModeCount is one raw survey column of an OD record.
type ModeCount struct {
	Column string  `json:"column"`
	Count  float64 `json:"count"`
}

// ODRecord is one survey observation for a zone pair. A missing count is NaN.
type ODRecord struct {
	Pair
	Counts []ModeCount `json:"counts"`
	Total  float64     `json:"total"`
}

// HasMissing reports whether any key or count of the record is missing.
func (r ODRecord) HasMissing() bool {
	if r.Origin == "" || r.Destination == "" || math.IsNaN(r.Total) {
		return true
	}
	for _, c := range r.Counts {
		if math.IsNaN(c.Count) {
			return true
		}
	}
	return false
}

// ODColumns returns the count columns across records in first-seen order,
// with Total last.
func ODColumns(records []ODRecord) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for _, c := range r.Counts {
			if c.Column == string(ModeTotal) || seen[c.Column] {
				continue
			}
			seen[c.Column] = true
			cols = append(cols, c.Column)
		}
	}
	return append(cols, string(ModeTotal))
}

// Value returns the count for column, or NaN when the record lacks it.
func (r ODRecord) Value(column string) float64 {
	if column == string(ModeTotal) {
		return r.Total
	}
	for _, c := range r.Counts {
		if c.Column == column {
			return c.Count
		}
	}
	return math.NaN()
}
