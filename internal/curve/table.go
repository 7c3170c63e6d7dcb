// Package curve maps smoothed temperatures to fan duty pairs through a
// banded hysteresis curve.
package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Entry is one temperature band and the duty bytes applied while in it.
type Entry struct {
	Low   byte
	High  byte
	DutyA byte
	DutyB byte
}

// Table is an ordered, immutable set of bands with Low strictly increasing.
type Table struct {
	entries []Entry
}

var ErrEmpty = errors.New("curve: table needs at least one band")

// New validates entries and returns a Table holding a copy of them.
func New(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	for i, e := range entries {
		if e.Low > e.High {
			return nil, fmt.Errorf("curve: band %d low %d above high %d", i, e.Low, e.High)
		}
		if i > 0 && e.Low <= entries[i-1].Low {
			return nil, fmt.Errorf("curve: band %d low %d not above band %d low %d", i, e.Low, i-1, entries[i-1].Low)
		}
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Table{entries: cp}, nil
}

// Build scales duty percentages (0-100) against two per-fan maxima and pairs
// them with the temperature bands.
func Build(bands [][2]byte, percents []float64, maxA, maxB byte) (*Table, error) {
	if len(bands) != len(percents) {
		return nil, fmt.Errorf("curve: %d bands but %d duty percentages", len(bands), len(percents))
	}
	entries := make([]Entry, len(bands))
	for i, b := range bands {
		if percents[i] < 0 || percents[i] > 100 || math.IsNaN(percents[i]) {
			return nil, fmt.Errorf("curve: duty %v at band %d outside 0-100", percents[i], i)
		}
		entries[i] = Entry{
			Low:   b[0],
			High:  b[1],
			DutyA: ScaleDuty(percents[i], maxA),
			DutyB: ScaleDuty(percents[i], maxB),
		}
	}
	return New(entries)
}

// ScaleDuty returns floor(percent * limit / 100) clamped to a byte.
func ScaleDuty(percent float64, limit byte) byte {
	v := math.Floor(percent * float64(limit) / 100)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxUint8 {
		return math.MaxUint8
	}
	return byte(v)
}

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Entry(i int) Entry { return t.entries[i] }

// Entries returns a copy of the bands.
func (t *Table) Entries() []Entry {
	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)
	return cp
}

// State is the hysteresis state carried between lookups. It is owned by a
// single poll loop and is not safe for concurrent use.
type State struct {
	Index int
	Low   byte
	High  byte
}

// NewState returns the startup state. The thresholds are inverted
// (Low above any reading, High below any reading) so the first lookup
// always re-evaluates the band.
func NewState() State {
	return State{Index: 1, Low: 100, High: 0}
}

// Lookup picks the band for a window spanning [minT, maxT] and updates st.
//
// Comparison convention:
//   - maxT <= first Low selects band 0 and minT >= last High selects the top
//     band, both regardless of state.
//   - Otherwise the band is only re-evaluated once the whole window has left
//     the current thresholds: maxT < st.Low or minT > st.High (strict).
//   - Re-evaluation picks the left-most band whose High is >= minT.
//
// Thresholds are only rewritten when the index changes.
func (t *Table) Lookup(minT, maxT byte, st *State) int {
	last := len(t.entries) - 1
	idx := st.Index

	switch {
	case maxT <= t.entries[0].Low:
		idx = 0
	case minT >= t.entries[last].High:
		idx = last
	case maxT < st.Low || minT > st.High:
		idx = t.search(minT)
	}
	// The startup index can be past the end of a one-band table.
	if idx > last {
		idx = last
	}
	if idx < 0 {
		idx = 0
	}

	if idx != st.Index {
		st.Index = idx
		st.Low = t.entries[idx].Low
		st.High = t.entries[idx].High
	}
	return idx
}

// search returns the left-most band whose High is >= temp, or the top band
// when temp is above every High.
func (t *Table) search(temp byte) int {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].High >= temp
	})
	if i > len(t.entries)-1 {
		i = len(t.entries) - 1
	}
	return i
}
