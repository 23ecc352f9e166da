// Package domain contains core domain types for the coach server.
package domain

import "fmt"

// Stage is one of the four learning stages a user utterance is classified into.
type Stage int

// The stage set is closed. Zero value is not a valid stage.
const (
	StageZeroLearning Stage = iota + 1
	StageFirstLearning
	StageSecondLearning
	StageThirdLearning
)

// Stages lists every stage in display and chart order.
var Stages = [...]Stage{
	StageZeroLearning,
	StageFirstLearning,
	StageSecondLearning,
	StageThirdLearning,
}

// String returns the wire identifier of the stage.
func (s Stage) String() string {
	switch s {
	case StageZeroLearning:
		return "zero_learning"
	case StageFirstLearning:
		return "first_learning"
	case StageSecondLearning:
		return "second_learning"
	case StageThirdLearning:
		return "third_learning"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool {
	return s >= StageZeroLearning && s <= StageThirdLearning
}

// ParseStage maps a wire identifier back to a Stage.
func ParseStage(v string) (Stage, bool) {
	for _, s := range Stages {
		if s.String() == v {
			return s, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler so stages serialize as identifiers.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	parsed, ok := ParseStage(string(b))
	if !ok {
		return fmt.Errorf("unknown stage %q", string(b))
	}
	*s = parsed
	return nil
}
