// Package sentiment scores and labels the polarity of user utterances.
package sentiment

import (
	"errors"
	"fmt"
	"math"

	"github.com/ashureev/bateson-coach/internal/domain"
)

// Label thresholds. Values exactly on a threshold are neutral.
const (
	PositiveThreshold = 0.5
	NegativeThreshold = -0.5
)

// ErrInvalidPolarity is returned when a scorer yields NaN or an infinity.
var ErrInvalidPolarity = errors.New("polarity is not a finite number")

// Scorer produces a polarity in [-1, 1] for a piece of text.
type Scorer interface {
	Polarity(text string) float64
}

// Result is the outcome of analyzing an utterance.
type Result struct {
	Polarity float64               `json:"polarity"`
	Label    domain.SentimentLabel `json:"label"`
}

// Label maps a polarity score to its band.
func Label(polarity float64) (domain.SentimentLabel, error) {
	if math.IsNaN(polarity) || math.IsInf(polarity, 0) {
		return domain.SentimentNeutral, fmt.Errorf("label %v: %w", polarity, ErrInvalidPolarity)
	}
	switch {
	case polarity > PositiveThreshold:
		return domain.SentimentPositive, nil
	case polarity < NegativeThreshold:
		return domain.SentimentNegative, nil
	default:
		return domain.SentimentNeutral, nil
	}
}

// Analyzer combines a Scorer with the label bands.
type Analyzer struct {
	scorer Scorer
}

// NewAnalyzer returns an Analyzer. A nil scorer uses the built-in lexicon.
func NewAnalyzer(scorer Scorer) *Analyzer {
	if scorer == nil {
		scorer = NewLexiconScorer()
	}
	return &Analyzer{scorer: scorer}
}

// Analyze scores and labels text.
func (a *Analyzer) Analyze(text string) (Result, error) {
	p := a.scorer.Polarity(text)
	label, err := Label(p)
	if err != nil {
		return Result{}, err
	}
	return Result{Polarity: p, Label: label}, nil
}
