package coach

import (
	"strings"

	"github.com/ashureev/bateson-coach/internal/domain"
)

// classifyOrder is the fixed match priority. third_learning is never matched
// by keyword; it is the fallback.
var classifyOrder = [...]domain.Stage{
	domain.StageZeroLearning,
	domain.StageFirstLearning,
	domain.StageSecondLearning,
}

// Classifier assigns a learning stage to an utterance by keyword.
type Classifier struct {
	keywords [len(classifyOrder)][]string
}

// NewClassifier builds a classifier from the deck's stage keywords.
func NewClassifier(d *Deck) *Classifier {
	c := &Classifier{}
	for i, s := range classifyOrder {
		for _, kw := range d.StageKeywords[s.String()] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				c.keywords[i] = append(c.keywords[i], kw)
			}
		}
	}
	return c
}

// Classify returns the first stage in priority order whose keyword occurs in
// utterance. Every input, including the empty string, has a stage.
func (c *Classifier) Classify(utterance string) domain.Stage {
	text := strings.ToLower(utterance)
	for i, s := range classifyOrder {
		for _, kw := range c.keywords[i] {
			if strings.Contains(text, kw) {
				return s
			}
		}
	}
	return domain.StageThirdLearning
}
