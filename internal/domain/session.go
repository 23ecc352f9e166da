package domain

import (
	"errors"
	"sync"
	"time"
)

// ErrSystemMessage is returned when a caller tries to append a second system message.
var ErrSystemMessage = errors.New("system message can only be set at session start")

// Session holds the private coaching state of one browser session.
//
// Methods with the Locked suffix require the caller to hold the session lock.
// Turns hold the lock for their whole duration so they are serialized per session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	lastSeen   time.Time
	transcript []Message
	progress   ProgressCounters
}

// SessionSnapshot is a read-only copy of a session's state.
type SessionSnapshot struct {
	ID         string           `json:"session_id"`
	Transcript []Message        `json:"transcript"`
	Progress   ProgressCounters `json:"progress"`
	CreatedAt  time.Time        `json:"created_at"`
	LastSeenAt time.Time        `json:"last_seen_at"`
}

// NewSession creates a session whose transcript starts with the system prompt.
func NewSession(id, systemPrompt string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
		transcript: []Message{
			{Role: RoleSystem, Content: systemPrompt},
		},
	}
}

// Lock acquires the session lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// AppendLocked appends a user or assistant message to the transcript.
func (s *Session) AppendLocked(m Message) error {
	if m.Role == RoleSystem {
		return ErrSystemMessage
	}
	s.transcript = append(s.transcript, m)
	return nil
}

// TranscriptLocked returns a copy of the transcript.
func (s *Session) TranscriptLocked() []Message {
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LenLocked returns the transcript length.
func (s *Session) LenLocked() int {
	return len(s.transcript)
}

// ProgressLocked returns a pointer to the live counters.
func (s *Session) ProgressLocked() *ProgressCounters {
	return &s.progress
}

// TouchLocked records activity at now.
func (s *Session) TouchLocked(now time.Time) {
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TouchLocked(now)
}

// LastSeen returns the time of the most recent activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Snapshot copies the session state under the lock.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:         s.ID,
		Transcript: s.TranscriptLocked(),
		Progress:   s.progress,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.lastSeen,
	}
}

// DisplayOrder returns the transcript newest first without the system prompt.
func (snap SessionSnapshot) DisplayOrder() []Message {
	if len(snap.Transcript) <= 1 {
		return []Message{}
	}
	out := make([]Message, 0, len(snap.Transcript)-1)
	for i := len(snap.Transcript) - 1; i >= 1; i-- {
		out = append(out, snap.Transcript[i])
	}
	return out
}
