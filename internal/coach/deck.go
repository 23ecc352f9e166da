// Package coach implements the learning-coach turn logic: stage
// classification, stage messages, recommendations and the simulation stub.
package coach

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/bateson-coach/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed decks/*.yaml
var deckFS embed.FS

// DefaultDeck is the built-in deck used when none is configured.
const DefaultDeck = "classic"

// ErrUnknownDeck is returned for a deck name with no built-in file.
var ErrUnknownDeck = errors.New("unknown deck")

// Placeholders substituted into deck templates.
const (
	placeholderInput = "{input}"
	placeholderLabel = "{label}"
	placeholderError = "{error}"
)

// Deck is the designer-tunable copy of the coach: every user-facing string
// and the stage keyword lists.
type Deck struct {
	Name            string              `yaml:"name" json:"name"`
	Title           string              `yaml:"title" json:"title"`
	InputPrompt     string              `yaml:"input_prompt" json:"input_prompt"`
	SystemPrompt    string              `yaml:"system_prompt" json:"system_prompt"`
	SentimentLine   string              `yaml:"sentiment_line" json:"-"`
	SentimentLabels map[string]string   `yaml:"sentiment_labels" json:"-"`
	StageKeywords   map[string][]string `yaml:"stage_keywords" json:"-"`
	StageTemplates  map[string]string   `yaml:"stage_templates" json:"-"`
	DialogueError   string              `yaml:"dialogue_error" json:"-"`
	Recommendation  RecommendationCopy  `yaml:"recommendation" json:"recommendation"`
	Simulation      SimulationCopy      `yaml:"simulation" json:"simulation"`
	Chart           ChartCopy           `yaml:"chart" json:"chart"`
	Buttons         ButtonCopy          `yaml:"buttons" json:"buttons"`
}

// RecommendationCopy holds resource titles keyed by resource ID.
type RecommendationCopy struct {
	Heading   string            `yaml:"heading" json:"heading"`
	Prefix    string            `yaml:"prefix" json:"prefix"`
	Resources map[string]string `yaml:"resources" json:"-"`
}

// SimulationCopy holds the simulation scenarios and the canned feedback.
type SimulationCopy struct {
	Heading        string   `yaml:"heading" json:"heading"`
	ScenarioPrefix string   `yaml:"scenario_prefix" json:"scenario_prefix"`
	Question       string   `yaml:"question" json:"question"`
	Feedback       string   `yaml:"feedback" json:"-"`
	Scenarios      []string `yaml:"scenarios" json:"-"`
}

// ChartCopy holds the progress chart labels.
type ChartCopy struct {
	Title  string `yaml:"title" json:"title"`
	XLabel string `yaml:"x_label" json:"x_label"`
	YLabel string `yaml:"y_label" json:"y_label"`
}

// ButtonCopy holds UI button captions.
type ButtonCopy struct {
	Progress       string `yaml:"progress" json:"progress"`
	Simulation     string `yaml:"simulation" json:"simulation"`
	Recommendation string `yaml:"recommendation" json:"recommendation"`
}

// BuiltinDecks returns the names of the embedded decks.
func BuiltinDecks() []string {
	entries, err := deckFS.ReadDir("decks")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// LoadDeck loads the built-in deck name and overlays the YAML file at path,
// if path is non-empty. Fields absent from the file keep their built-in values.
func LoadDeck(name, path string) (*Deck, error) {
	if name == "" {
		name = DefaultDeck
	}
	base, err := deckFS.ReadFile("decks/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, name)
	}

	d := &Deck{}
	if err := yaml.Unmarshal(base, d); err != nil {
		return nil, fmt.Errorf("parse built-in deck %q: %w", name, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read deck file: %w", err)
		}
		if err := yaml.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("parse deck file %s: %w", path, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deck %q: %w", d.Name, err)
	}
	return d, nil
}

// MustLoadDeck is LoadDeck for built-in decks in tests and defaults.
func MustLoadDeck(name string) *Deck {
	d, err := LoadDeck(name, "")
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks that every stage, label and resource has copy.
func (d *Deck) Validate() error {
	if strings.TrimSpace(d.SystemPrompt) == "" {
		return errors.New("system_prompt is empty")
	}
	if !strings.Contains(d.SentimentLine, placeholderLabel) {
		return fmt.Errorf("sentiment_line must contain %s", placeholderLabel)
	}
	for _, l := range []domain.SentimentLabel{domain.SentimentNegative, domain.SentimentNeutral, domain.SentimentPositive} {
		if d.SentimentLabels[l.String()] == "" {
			return fmt.Errorf("sentiment_labels.%s is empty", l)
		}
	}
	for _, s := range domain.Stages {
		if d.StageTemplates[s.String()] == "" {
			return fmt.Errorf("stage_templates.%s is empty", s)
		}
	}
	for k := range d.StageTemplates {
		if _, ok := domain.ParseStage(k); !ok {
			return fmt.Errorf("stage_templates has unknown stage %q", k)
		}
	}
	for k := range d.StageKeywords {
		s, ok := domain.ParseStage(k)
		if !ok {
			return fmt.Errorf("stage_keywords has unknown stage %q", k)
		}
		if s == domain.StageThirdLearning {
			return errors.New("stage_keywords.third_learning is not allowed; it is the fallback stage")
		}
	}
	for _, r := range domain.Resources {
		if d.Recommendation.Resources[string(r)] == "" {
			return fmt.Errorf("recommendation.resources.%s is empty", r)
		}
	}
	if len(d.Simulation.Scenarios) == 0 {
		return errors.New("simulation.scenarios is empty")
	}
	return nil
}

// RenderStage returns the stage template with utterance substituted verbatim.
func (d *Deck) RenderStage(stage domain.Stage, utterance string) string {
	tmpl, ok := d.StageTemplates[stage.String()]
	if !ok {
		// Unknown stages have no template; echo the utterance.
		return utterance
	}
	return strings.ReplaceAll(tmpl, placeholderInput, utterance)
}

// RenderSentiment returns the assistant line announcing the sentiment label.
func (d *Deck) RenderSentiment(label domain.SentimentLabel) string {
	return strings.ReplaceAll(d.SentimentLine, placeholderLabel, d.SentimentLabels[label.String()])
}

// RenderDialogueError returns the user-visible message for a failed dialogue call.
func (d *Deck) RenderDialogueError(err error) string {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if d.DialogueError == "" {
		return msg
	}
	return strings.ReplaceAll(d.DialogueError, placeholderError, msg)
}

// ResourceTitle returns the display title of a resource.
func (d *Deck) ResourceTitle(id domain.ResourceID) string {
	return d.Recommendation.Resources[string(id)]
}
