package domain

// SentimentLabel is the three-band classification of a polarity score.
// Ordering is Negative < Neutral < Positive.
type SentimentLabel int

const (
	SentimentNegative SentimentLabel = iota - 1
	SentimentNeutral
	SentimentPositive
)

func (l SentimentLabel) String() string {
	switch l {
	case SentimentNegative:
		return "negative"
	case SentimentPositive:
		return "positive"
	default:
		return "neutral"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l SentimentLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
