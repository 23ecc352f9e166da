package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProgressCounters tallies classified utterances per stage.
// The key set is fixed to Stages and counts never decrease.
type ProgressCounters struct {
	counts [len(Stages)]int
}

// Increment adds one to the counter of stage. Stages outside the closed set
// are ignored and reported with ok=false.
func (p *ProgressCounters) Increment(stage Stage) (ok bool) {
	if !stage.Valid() {
		return false
	}
	p.counts[stage-1]++
	return true
}

// Count returns the tally for stage, or 0 for an unknown stage.
func (p ProgressCounters) Count(stage Stage) int {
	if !stage.Valid() {
		return 0
	}
	return p.counts[stage-1]
}

// Total returns the number of classified utterances.
func (p ProgressCounters) Total() int {
	n := 0
	for _, c := range p.counts {
		n += c
	}
	return n
}

// MarshalJSON writes the counters as an object keyed by stage identifier in stage order.
func (p ProgressCounters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range Stages {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(s.String()))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(p.counts[i]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keyed by stage identifier. Unknown keys and
// negative counts are rejected.
func (p *ProgressCounters) UnmarshalJSON(b []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var next ProgressCounters
	for k, v := range raw {
		s, ok := ParseStage(k)
		if !ok {
			return fmt.Errorf("unknown stage %q", k)
		}
		if v < 0 {
			return fmt.Errorf("negative count for %s", k)
		}
		next.counts[s-1] = v
	}
	*p = next
	return nil
}

// NewProgressCounters builds counters from explicit values. Intended for
// tests and journal aggregates.
func NewProgressCounters(values map[Stage]int) ProgressCounters {
	var p ProgressCounters
	for s, v := range values {
		if s.Valid() && v > 0 {
			p.counts[s-1] = v
		}
	}
	return p
}
