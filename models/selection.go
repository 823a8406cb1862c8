package models

import (
	"math"
	"strconv"
)

// SelectionColumns are the columns kept from a selections export, in output
// order. The misspelt "BuccanneerPoints" is the vendor's header.
var SelectionColumns = []string{
	"Venue", "RN", "TN", "Horse Name", "Today Price", "Line of Betting",
	"Race Group", "Race Class", "Today Dist", "Track Condition", "No. Starters",
	"Today Race PM", "Comments", "OneHundredRatings", "Ultimrating",
	"Ultimrank", "RaceVolatility", "BuccaneerRank", "BuccanneerPoints",
}

// Column indexes into Runner.Values.
const (
	ColVenue       = 0
	ColRaceNumber  = 1
	ColHorseName   = 3
	ColUltimrating = 14
)

// Runner is one cleaned row of a selections export.
type Runner struct {
	// Values is aligned with SelectionColumns.
	Values []string
	// RaceNumber and UltimRating are NaN when the source value is not numeric.
	RaceNumber  float64
	UltimRating float64
}

// Venue returns the runner's venue.
func (r *Runner) Venue() string {
	return r.Values[ColVenue]
}

// HorseName returns the runner's horse name.
func (r *Runner) HorseName() string {
	return r.Values[ColHorseName]
}

// Record renders the runner for output, with coerced numbers in place of the
// raw RN and Ultimrating values.
func (r *Runner) Record() []string {
	out := make([]string, len(r.Values))
	copy(out, r.Values)
	out[ColRaceNumber] = formatNumber(r.RaceNumber)
	out[ColUltimrating] = formatNumber(r.UltimRating)
	return out
}

// Map returns the output record keyed by column name.
func (r *Runner) Map() map[string]string {
	record := r.Record()
	out := make(map[string]string, len(SelectionColumns))
	for i, col := range SelectionColumns {
		out[col] = record[i]
	}
	return out
}

func formatNumber(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SelectionStats summarises a cleaned export for the ready email.
type SelectionStats struct {
	Rows      int `json:"rows"`
	Venues    int `json:"venues"`
	Ultimates int `json:"ultimates"`
}

// SelectionSet is a cleaned, sorted export.
type SelectionSet struct {
	Source  string
	Runners []*Runner
	Stats   SelectionStats
}
