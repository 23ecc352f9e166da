package coach

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/bateson-coach/internal/dialogue"
	"github.com/ashureev/bateson-coach/internal/domain"
	"github.com/ashureev/bateson-coach/internal/sentiment"
)

type fakeDialogue struct {
	mu    sync.Mutex
	calls [][]domain.Message
	reply string
	err   error
}

func (f *fakeDialogue) Reply(_ context.Context, transcript []domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transcript)
	if f.err != nil {
		return domain.Message{}, f.err
	}
	return domain.Message{Role: domain.RoleAssistant, Content: f.reply}, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	records []domain.TurnRecord
}

func (f *fakeJournal) RecordTurn(_ context.Context, rec domain.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type constScorer float64

func (c constScorer) Polarity(string) float64 { return float64(c) }

func newTestCoach(t *testing.T, d dialogue.Replier, j TurnRecorder) *Coach {
	t.Helper()
	c, err := New(Options{
		Deck:     MustLoadDeck("classic"),
		Dialogue: d,
		Journal:  j,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	c := NewClassifier(MustLoadDeck("classic"))

	tests := []struct {
		in   string
		want domain.Stage
	}{
		{"basics and method", domain.StageZeroLearning},
		{"a method with a pattern", domain.StageFirstLearning},
		{"I see a pattern", domain.StageSecondLearning},
		{"", domain.StageThirdLearning},
		{"something else entirely", domain.StageThirdLearning},
		{"基礎から方法まで", domain.StageZeroLearning},
		{"新しい方法を知りたい", domain.StageFirstLearning},
		{"思考のパターン", domain.StageSecondLearning},
		{"BASICS first", domain.StageZeroLearning},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.in); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name   string
		counts map[domain.Stage]int
		want   domain.ResourceID
	}{
		{"all zero", nil, domain.ResourceBasicsReview},
		{"threshold is strict", map[domain.Stage]int{domain.StageThirdLearning: 3}, domain.ResourceBasicsReview},
		{"first", map[domain.Stage]int{domain.StageFirstLearning: 4}, domain.ResourceNewSkillCourse},
		{"second", map[domain.Stage]int{domain.StageSecondLearning: 4, domain.StageFirstLearning: 1}, domain.ResourceThinkingPatternReading},
		{"third wins tie", map[domain.Stage]int{
			domain.StageThirdLearning:  4,
			domain.StageSecondLearning: 4,
			domain.StageFirstLearning:  4,
		}, domain.ResourceAdvancedCaseStudy},
		{"second beats first", map[domain.Stage]int{domain.StageSecondLearning: 5, domain.StageFirstLearning: 9}, domain.ResourceThinkingPatternReading},
		{"zero learning never recommends", map[domain.Stage]int{domain.StageZeroLearning: 10}, domain.ResourceBasicsReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recommend(domain.NewProgressCounters(tt.counts)); got != tt.want {
				t.Errorf("Recommend() = %s, want %s", got, tt.want)
			}
		})
	}

	rec := RecommendFor(MustLoadDeck("classic"), domain.ProgressCounters{})
	if rec.Title != "基礎知識を復習するための教材" {
		t.Errorf("unexpected title: %q", rec.Title)
	}
}

func TestTurnAppendsThreeMessagesBeforeReply(t *testing.T) {
	fd := &fakeDialogue{reply: "let's explore"}
	fj := &fakeJournal{}
	c := newTestCoach(t, fd, fj)
	sess := c.NewSession("s-1")

	res, err := c.Turn(context.Background(), sess, "I want to learn a new method")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	if len(fd.calls) != 1 {
		t.Fatalf("expected one dialogue call, got %d", len(fd.calls))
	}
	sent := fd.calls[0]
	if len(sent) != 4 {
		t.Fatalf("dialogue saw %d messages, want system + 3", len(sent))
	}
	if sent[0].Role != domain.RoleSystem ||
		sent[1].Role != domain.RoleUser || sent[1].Content != "I want to learn a new method" ||
		sent[2].Content != "感情分析結果: ニュートラル" ||
		sent[3].Content != "新しい方法について考えてみましょう: I want to learn a new method" {
		t.Fatalf("unexpected transcript sent to dialogue: %+v", sent)
	}

	if res.Stage != domain.StageFirstLearning {
		t.Errorf("stage = %s, want first_learning", res.Stage)
	}
	if got := res.Progress.Count(domain.StageFirstLearning); got != 1 {
		t.Errorf("first_learning count = %d, want 1", got)
	}
	if res.Progress.Total() != 1 {
		t.Errorf("total = %d, want 1", res.Progress.Total())
	}
	if len(res.Appended) != 4 || res.Appended[3].Content != "let's explore" {
		t.Errorf("unexpected appended messages: %+v", res.Appended)
	}
	if res.Error != "" {
		t.Errorf("unexpected error text: %q", res.Error)
	}

	snap := sess.Snapshot()
	if len(snap.Transcript) != 5 {
		t.Errorf("transcript length = %d, want 5", len(snap.Transcript))
	}

	if len(fj.records) != 1 || !fj.records[0].ReplyReceived || fj.records[0].Stage != domain.StageFirstLearning {
		t.Errorf("unexpected journal records: %+v", fj.records)
	}
}

func TestTurnDialogueFailureSkipsReply(t *testing.T) {
	fd := &fakeDialogue{err: &dialogue.Error{Kind: dialogue.KindAuth, Err: errors.New("bad key")}}
	fj := &fakeJournal{}
	c := newTestCoach(t, fd, fj)
	sess := c.NewSession("s-2")

	before := len(sess.Snapshot().Transcript)
	res, err := c.Turn(context.Background(), sess, "基礎を固めたい")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	after := len(sess.Snapshot().Transcript)
	if after != before+3 {
		t.Fatalf("transcript grew by %d, want 3", after-before)
	}
	if res.ErrorKind != string(dialogue.KindAuth) {
		t.Errorf("error kind = %q", res.ErrorKind)
	}
	if !strings.HasPrefix(res.Error, "エラーが発生しました: ") || !strings.Contains(res.Error, "bad key") {
		t.Errorf("unexpected error text: %q", res.Error)
	}
	if res.Progress.Count(domain.StageZeroLearning) != 1 {
		t.Errorf("counters not incremented on failure: %+v", res.Progress)
	}
	if len(fj.records) != 1 || fj.records[0].ReplyReceived || fj.records[0].ErrorKind != "auth" {
		t.Errorf("unexpected journal records: %+v", fj.records)
	}
}

func TestTurnRejectsEmptyUtterance(t *testing.T) {
	fd := &fakeDialogue{reply: "x"}
	c := newTestCoach(t, fd, nil)
	sess := c.NewSession("s-3")

	for _, in := range []string{"", "   \n"} {
		if _, err := c.Turn(context.Background(), sess, in); !errors.Is(err, ErrEmptyUtterance) {
			t.Errorf("Turn(%q) error = %v, want ErrEmptyUtterance", in, err)
		}
	}
	if len(fd.calls) != 0 || len(sess.Snapshot().Transcript) != 1 {
		t.Error("empty utterance must not change the session")
	}
}

func TestTurnInvalidPolarityLeavesSessionUntouched(t *testing.T) {
	fd := &fakeDialogue{reply: "x"}
	c, err := New(Options{
		Deck:     MustLoadDeck("classic"),
		Dialogue: fd,
		Analyzer: sentiment.NewAnalyzer(constScorer(math.NaN())),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sess := c.NewSession("s-4")

	if _, err := c.Turn(context.Background(), sess, "hello"); !errors.Is(err, sentiment.ErrInvalidPolarity) {
		t.Fatalf("error = %v, want ErrInvalidPolarity", err)
	}
	snap := sess.Snapshot()
	if len(snap.Transcript) != 1 || snap.Progress.Total() != 0 {
		t.Errorf("session changed: %+v", snap)
	}
}

func TestTurnSentimentLine(t *testing.T) {
	fd := &fakeDialogue{reply: "x"}
	c, err := New(Options{
		Deck:     MustLoadDeck("classic"),
		Dialogue: fd,
		Analyzer: sentiment.NewAnalyzer(constScorer(-0.9)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := c.Turn(context.Background(), c.NewSession("s-5"), "pattern")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if res.Appended[1].Content != "感情分析結果: ネガティブ" {
		t.Errorf("sentiment line = %q", res.Appended[1].Content)
	}
	if res.Sentiment.Label != domain.SentimentNegative {
		t.Errorf("label = %s", res.Sentiment.Label)
	}
}

func TestTurnsSerializedPerSession(t *testing.T) {
	fd := &fakeDialogue{reply: "ok"}
	c := newTestCoach(t, fd, nil)
	sess := c.NewSession("s-6")

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Turn(context.Background(), sess, "method"); err != nil {
				t.Errorf("Turn failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap := sess.Snapshot()
	if len(snap.Transcript) != 1+4*turns {
		t.Fatalf("transcript length = %d, want %d", len(snap.Transcript), 1+4*turns)
	}
	// Each turn's four messages stay contiguous.
	for i := 1; i < len(snap.Transcript); i += 4 {
		if snap.Transcript[i].Role != domain.RoleUser || snap.Transcript[i+3].Content != "ok" {
			t.Fatalf("interleaved turn at %d: %+v", i, snap.Transcript[i:i+4])
		}
	}
	if snap.Progress.Count(domain.StageFirstLearning) != turns {
		t.Errorf("first_learning = %d, want %d", snap.Progress.Count(domain.StageFirstLearning), turns)
	}
}

func TestNewRequiresDeckAndDialogue(t *testing.T) {
	if _, err := New(Options{Dialogue: &fakeDialogue{}}); err == nil {
		t.Error("expected error without deck")
	}
	if _, err := New(Options{Deck: MustLoadDeck("classic")}); err == nil {
		t.Error("expected error without dialogue")
	}
}
