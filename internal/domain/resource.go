package domain

// ResourceID identifies a recommended learning resource.
type ResourceID string

const (
	ResourceAdvancedCaseStudy      ResourceID = "advanced_case_study"
	ResourceThinkingPatternReading ResourceID = "thinking_pattern_reading"
	ResourceNewSkillCourse         ResourceID = "new_skill_course"
	ResourceBasicsReview           ResourceID = "basics_review"
)

// Resources lists every resource identifier.
var Resources = [...]ResourceID{
	ResourceAdvancedCaseStudy,
	ResourceThinkingPatternReading,
	ResourceNewSkillCourse,
	ResourceBasicsReview,
}
