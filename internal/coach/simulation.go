package coach

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Simulator serves random practice scenarios and the canned feedback stub.
// It never touches session transcripts or counters.
type Simulator struct {
	deck *Deck

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a Simulator. A nil src seeds from the clock.
func NewSimulator(d *Deck, src rand.Source) *Simulator {
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)
	}
	return &Simulator{deck: d, rng: rand.New(src)}
}

// Scenario picks a scenario uniformly at random.
func (s *Simulator) Scenario() string {
	s.mu.Lock()
	i := s.rng.IntN(len(s.deck.Simulation.Scenarios))
	s.mu.Unlock()
	return s.deck.Simulation.Scenarios[i]
}

// Feedback returns the coach feedback for a proposed action. An empty action
// gets no feedback.
func (s *Simulator) Feedback(action string) (string, bool) {
	if strings.TrimSpace(action) == "" {
		return "", false
	}
	return s.deck.Simulation.Feedback, true
}
