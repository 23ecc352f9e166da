package coach

import "github.com/ashureev/bateson-coach/internal/domain"

// recommendThreshold is exceeded from the fourth utterance of a stage onward.
const recommendThreshold = 3

// Recommendation is a resource pick with its display title.
type Recommendation struct {
	ResourceID domain.ResourceID `json:"resource_id"`
	Title      string            `json:"title"`
}

// Recommend picks a resource from the counters. Higher stages win ties.
func Recommend(p domain.ProgressCounters) domain.ResourceID {
	switch {
	case p.Count(domain.StageThirdLearning) > recommendThreshold:
		return domain.ResourceAdvancedCaseStudy
	case p.Count(domain.StageSecondLearning) > recommendThreshold:
		return domain.ResourceThinkingPatternReading
	case p.Count(domain.StageFirstLearning) > recommendThreshold:
		return domain.ResourceNewSkillCourse
	default:
		return domain.ResourceBasicsReview
	}
}

// RecommendFor returns the recommendation with its title from d.
func RecommendFor(d *Deck, p domain.ProgressCounters) Recommendation {
	id := Recommend(p)
	return Recommendation{ResourceID: id, Title: d.ResourceTitle(id)}
}
