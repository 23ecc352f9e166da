package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/bateson-coach/internal/dialogue"
	"github.com/ashureev/bateson-coach/internal/domain"
	"github.com/ashureev/bateson-coach/internal/sentiment"
	"github.com/ashureev/bateson-coach/internal/transcriptlog"
)

// journalTimeout bounds the best-effort journal write after a turn.
const journalTimeout = 2 * time.Second

// ErrEmptyUtterance is returned for a turn with no text.
var ErrEmptyUtterance = errors.New("utterance is empty")

// TurnRecorder persists a summary of each processed turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

// TurnResult is everything a turn produced.
type TurnResult struct {
	// Appended holds the messages added to the transcript, in order.
	Appended       []domain.Message        `json:"appended"`
	Stage          domain.Stage            `json:"stage"`
	Sentiment      sentiment.Result        `json:"sentiment"`
	Progress       domain.ProgressCounters `json:"progress"`
	Recommendation Recommendation          `json:"recommendation"`
	// Error is the user-visible dialogue failure message, if any.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Options configures a Coach.
type Options struct {
	Deck     *Deck
	Analyzer *sentiment.Analyzer
	Dialogue dialogue.Replier
	Journal  TurnRecorder
	ConvLog  transcriptlog.Logger
	Logger   *slog.Logger
	Now      func() time.Time
}

// Coach runs turns against sessions.
type Coach struct {
	deck       *Deck
	classifier *Classifier
	analyzer   *sentiment.Analyzer
	dialogue   dialogue.Replier
	journal    TurnRecorder
	convlog    transcriptlog.Logger
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Coach. Deck and Dialogue are required.
func New(opts Options) (*Coach, error) {
	if opts.Deck == nil {
		return nil, errors.New("coach: deck is required")
	}
	if opts.Dialogue == nil {
		return nil, errors.New("coach: dialogue is required")
	}
	if opts.Analyzer == nil {
		opts.Analyzer = sentiment.NewAnalyzer(nil)
	}
	if opts.ConvLog == nil {
		opts.ConvLog = transcriptlog.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coach{
		deck:       opts.Deck,
		classifier: NewClassifier(opts.Deck),
		analyzer:   opts.Analyzer,
		dialogue:   opts.Dialogue,
		journal:    opts.Journal,
		convlog:    opts.ConvLog,
		logger:     opts.Logger,
		now:        opts.Now,
	}, nil
}

// Deck returns the copy deck in use.
func (c *Coach) Deck() *Deck { return c.deck }

// NewSession creates a session seeded with the deck's system prompt.
func (c *Coach) NewSession(id string) *domain.Session {
	return domain.NewSession(id, c.deck.SystemPrompt, c.now())
}

// Turn processes one user utterance. It holds the session lock for the whole
// turn, including the dialogue call, so turns on one session never overlap.
//
// A dialogue failure does not fail the turn: the result carries the
// user-visible error and the transcript gets no reply message.
func (c *Coach) Turn(ctx context.Context, sess *domain.Session, utterance string) (*TurnResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, ErrEmptyUtterance
	}

	// Scored before anything is appended so an invalid score leaves the session untouched.
	mood, err := c.analyzer.Analyze(utterance)
	if err != nil {
		return nil, fmt.Errorf("analyze sentiment: %w", err)
	}

	sess.Lock()
	defer sess.Unlock()
	sess.TouchLocked(c.now())

	res := &TurnResult{Sentiment: mood}
	appendMsg := func(m domain.Message) {
		// Only system messages are rejected, and none are appended here.
		_ = sess.AppendLocked(m)
		res.Appended = append(res.Appended, m)
	}

	appendMsg(domain.Message{Role: domain.RoleUser, Content: utterance})
	appendMsg(domain.Message{Role: domain.RoleAssistant, Content: c.deck.RenderSentiment(mood.Label)})

	res.Stage = c.classifier.Classify(utterance)
	progress := sess.ProgressLocked()
	progress.Increment(res.Stage)

	appendMsg(domain.Message{Role: domain.RoleAssistant, Content: c.deck.RenderStage(res.Stage, utterance)})

	reply, err := c.dialogue.Reply(ctx, sess.TranscriptLocked())
	if err != nil {
		res.ErrorKind = string(dialogue.KindOf(err))
		if res.ErrorKind == "" {
			res.ErrorKind = string(dialogue.KindTransport)
		}
		res.Error = c.deck.RenderDialogueError(err)
		c.logger.Warn("Dialogue reply failed",
			"session_id", sess.ID,
			"kind", res.ErrorKind,
			"error", err,
		)
	} else {
		reply.Role = domain.RoleAssistant
		appendMsg(reply)
	}

	res.Progress = *progress
	res.Recommendation = RecommendFor(c.deck, res.Progress)

	c.logger.Info("Coach turn processed",
		"session_id", sess.ID,
		"stage", res.Stage.String(),
		"sentiment", mood.Label.String(),
		"appended", len(res.Appended),
		"reply", err == nil,
	)
	c.record(ctx, sess.ID, res)
	return res, nil
}

func (c *Coach) record(ctx context.Context, sessionID string, res *TurnResult) {
	ts := c.now()
	for _, m := range res.Appended {
		direction := "inbound"
		if m.Role == domain.RoleUser {
			direction = "outbound"
		}
		c.convlog.Log(transcriptlog.Event{
			Timestamp:  ts.UTC().Format(time.RFC3339Nano),
			SessionID:  sessionID,
			Channel:    "coach_turn",
			Direction:  direction,
			EventType:  string(m.Role) + "_message",
			Role:       string(m.Role),
			ContentRaw: m.Content,
			Meta: map[string]any{
				"stage":      res.Stage.String(),
				"error_kind": res.ErrorKind,
			},
		})
	}

	if c.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := c.journal.RecordTurn(jctx, domain.TurnRecord{
		SessionID:     sessionID,
		Stage:         res.Stage,
		Sentiment:     res.Sentiment.Label,
		Polarity:      res.Sentiment.Polarity,
		ReplyReceived: res.Error == "",
		ErrorKind:     res.ErrorKind,
		CreatedAt:     ts,
	}); err != nil {
		c.logger.Warn("failed to journal turn", "session_id", sessionID, "error", err)
	}
}
