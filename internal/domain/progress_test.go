package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProgressCounters_IncrementOnlyTouchesOneStage(t *testing.T) {
	var p ProgressCounters
	for i := 0; i < 4; i++ {
		if !p.Increment(StageFirstLearning) {
			t.Fatalf("Increment(first_learning) reported unknown stage")
		}
	}

	for _, s := range Stages {
		want := 0
		if s == StageFirstLearning {
			want = 4
		}
		if got := p.Count(s); got != want {
			t.Errorf("Count(%s) = %d, want %d", s, got, want)
		}
	}
}

func TestProgressCounters_UnknownStageIsNoop(t *testing.T) {
	var p ProgressCounters
	p.Increment(StageThirdLearning)

	for _, bad := range []Stage{0, 5, -1} {
		if p.Increment(bad) {
			t.Errorf("Increment(%d) = true, want false", int(bad))
		}
	}
	if p.Total() != 1 {
		t.Errorf("Total() = %d, want 1", p.Total())
	}
}

func TestProgressCounters_JSON(t *testing.T) {
	p := NewProgressCounters(map[Stage]int{StageSecondLearning: 2})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"zero_learning":0,"first_learning":0,"second_learning":2,"third_learning":0}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}

	var back ProgressCounters
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back != p {
		t.Errorf("round trip mismatch: %+v vs %+v", back, p)
	}

	if err := json.Unmarshal([]byte(`{"fourth_learning":1}`), &back); err == nil {
		t.Error("expected error for unknown stage key")
	}
}

func TestSession_TranscriptInvariants(t *testing.T) {
	s := NewSession("s-1", "prompt", time.Unix(100, 0))
	s.Lock()
	defer s.Unlock()

	if err := s.AppendLocked(Message{Role: RoleSystem, Content: "again"}); err != ErrSystemMessage {
		t.Fatalf("AppendLocked(system) error = %v, want ErrSystemMessage", err)
	}
	if err := s.AppendLocked(Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendLocked(user) failed: %v", err)
	}

	got := s.TranscriptLocked()
	if len(got) != 2 || got[0].Role != RoleSystem || got[1].Content != "hi" {
		t.Fatalf("unexpected transcript: %+v", got)
	}

	got[0].Content = "mutated"
	if s.TranscriptLocked()[0].Content != "prompt" {
		t.Error("TranscriptLocked must return a copy")
	}
}

func TestSessionSnapshot_DisplayOrder(t *testing.T) {
	snap := SessionSnapshot{Transcript: []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
	}}

	got := snap.DisplayOrder()
	if len(got) != 2 || got[0].Content != "2" || got[1].Content != "1" {
		t.Fatalf("DisplayOrder() = %+v", got)
	}
}

func TestStage_TextRoundTrip(t *testing.T) {
	for _, s := range Stages {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d) failed: %v", int(s), err)
		}
		var back Stage
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Errorf("UnmarshalText(%s) = %v, %v", b, back, err)
		}
	}
	if _, err := Stage(0).MarshalText(); err == nil {
		t.Error("expected error for zero stage")
	}
}
