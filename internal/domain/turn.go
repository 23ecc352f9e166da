package domain

import "time"

// TurnRecord is the journal entry written for every processed turn.
type TurnRecord struct {
	SessionID     string
	Stage         Stage
	Sentiment     SentimentLabel
	Polarity      float64
	ReplyReceived bool
	ErrorKind     string
	CreatedAt     time.Time
}

// StageTotals aggregates journaled turns per stage across all sessions.
type StageTotals struct {
	Turns    int              `json:"turns"`
	Failed   int              `json:"failed_replies"`
	Progress ProgressCounters `json:"stages"`
	Sessions int              `json:"sessions"`
	Since    time.Time        `json:"since"`
}
