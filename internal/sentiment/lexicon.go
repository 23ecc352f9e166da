package sentiment

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// negationFactor matches the pattern-library convention of scaling a negated
// term by -0.5 rather than flipping it outright.
const negationFactor = -0.5

type entryKind int

const (
	kindTerm entryKind = iota
	kindNegator
	kindPostNegator
	kindIntensifier
)

type entry struct {
	text  []rune
	kind  entryKind
	value float64
	ascii bool
}

// LexiconScorer is a small bilingual (Japanese/English) polarity lexicon.
// The score of a text is the mean polarity of the terms found in it.
type LexiconScorer struct {
	byFirst map[rune][]entry
}

var defaultTerms = map[string]float64{
	// Japanese stems are used where the inflected form changes under negation.
	"嬉し": 0.8, "うれし": 0.8, "楽し": 0.8, "たのし": 0.8, "好き": 0.6, "大好き": 0.9,
	"最高": 1.0, "素晴らし": 1.0, "すばらし": 1.0, "良い": 0.7, "良く": 0.7, "よい": 0.7,
	"いい": 0.5, "ワクワク": 0.8, "わくわく": 0.8, "満足": 0.6, "安心": 0.5, "感謝": 0.7,
	"ありがとう": 0.6, "面白": 0.6, "おもしろ": 0.6, "前向き": 0.6, "自信": 0.5, "幸せ": 0.9,
	"悲し": -0.8, "かなし": -0.8, "辛い": -0.7, "辛く": -0.7, "つらい": -0.7, "つらく": -0.7,
	"不安": -0.6, "心配": -0.5, "嫌い": -0.7, "大嫌い": -0.9, "最悪": -1.0, "怖い": -0.7,
	"こわい": -0.7, "疲れ": -0.5, "難し": -0.4, "困っ": -0.6, "苦手": -0.5, "退屈": -0.6,
	"イライラ": -0.7, "いらいら": -0.7, "落ち込": -0.7, "憂鬱": -0.8, "怒っ": -0.6,

	"good": 0.7, "great": 0.8, "happy": 0.8, "love": 0.5, "excellent": 1.0,
	"amazing": 0.6, "wonderful": 1.0, "fun": 0.3, "excited": 0.4, "glad": 0.5,
	"best": 1.0, "nice": 0.6, "enjoy": 0.4, "interesting": 0.5, "confident": 0.5,
	"bad": -0.7, "terrible": -1.0, "awful": -1.0, "sad": -0.5, "hate": -0.8,
	"angry": -0.5, "worried": -0.4, "boring": -1.0, "difficult": -0.5, "confused": -0.4,
	"frustrated": -0.7, "tired": -0.4, "worst": -1.0, "anxious": -0.6, "stuck": -0.4,
}

var defaultNegators = []string{
	"not", "never", "no", "don't", "doesn't", "didn't", "isn't", "wasn't", "can't", "cannot", "won't",
}

// Japanese negation follows the predicate.
var defaultPostNegators = []string{
	"ない", "なかった", "なく", "くない", "くなかった", "くなく", "ません", "じゃない", "ではない", "ず",
}

var defaultIntensifiers = map[string]float64{
	"very": 1.3, "really": 1.3, "extremely": 1.5, "so": 1.2, "slightly": 0.5,
	"とても": 1.3, "すごく": 1.3, "本当に": 1.3, "かなり": 1.2, "めちゃくちゃ": 1.5,
	"少し": 0.5, "ちょっと": 0.5,
}

// NewLexiconScorer builds the default lexicon.
func NewLexiconScorer() *LexiconScorer {
	return NewLexiconScorerWith(defaultTerms, defaultNegators, defaultPostNegators, defaultIntensifiers)
}

// NewLexiconScorerWith builds a scorer from custom word lists.
func NewLexiconScorerWith(terms map[string]float64, negators, postNegators []string, intensifiers map[string]float64) *LexiconScorer {
	s := &LexiconScorer{
		byFirst: make(map[rune][]entry),
	}
	for t, v := range terms {
		s.add(t, kindTerm, v)
	}
	for _, n := range negators {
		s.add(n, kindNegator, 0)
	}
	for _, n := range postNegators {
		s.add(n, kindPostNegator, 0)
	}
	for t, v := range intensifiers {
		s.add(t, kindIntensifier, v)
	}
	for r := range s.byFirst {
		list := s.byFirst[r]
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].text) > len(list[j].text) })
	}
	return s
}

func (s *LexiconScorer) add(text string, kind entryKind, value float64) {
	rs := []rune(s.normalize(text))
	if len(rs) == 0 {
		return
	}
	s.byFirst[rs[0]] = append(s.byFirst[rs[0]], entry{
		text:  rs,
		kind:  kind,
		value: value,
		ascii: isASCII(rs),
	})
}

// normalize folds full-width forms, composes characters and case-folds.
// A Caser is stateful, so one is made per call.
func (s *LexiconScorer) normalize(text string) string {
	text = norm.NFKC.String(text)
	text = width.Fold.String(text)
	return cases.Fold().String(text)
}

// Polarity implements Scorer.
func (s *LexiconScorer) Polarity(text string) float64 {
	rs := []rune(s.normalize(text))

	var scores []float64
	negated := false
	multiplier := 1.0

	for i := 0; i < len(rs); {
		if isClauseBreak(rs[i]) {
			negated = false
			multiplier = 1.0
			i++
			continue
		}

		e, ok := s.match(rs, i, kindTerm, kindNegator, kindIntensifier)
		if !ok {
			i = skipToken(rs, i)
			continue
		}
		i += len(e.text)

		switch e.kind {
		case kindNegator:
			negated = !negated
		case kindIntensifier:
			multiplier *= e.value
		case kindTerm:
			v := e.value * multiplier
			if post, ok := s.match(rs, i, kindPostNegator); ok {
				negated = !negated
				i += len(post.text)
			}
			if negated {
				v *= negationFactor
			}
			scores = append(scores, clamp(v))
			negated = false
			multiplier = 1.0
		}
	}

	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return clamp(sum / float64(len(scores)))
}

func (s *LexiconScorer) match(rs []rune, i int, kinds ...entryKind) (entry, bool) {
	if i >= len(rs) {
		return entry{}, false
	}
	for _, e := range s.byFirst[rs[i]] {
		if !hasKind(kinds, e.kind) || !hasPrefixAt(rs, i, e.text) {
			continue
		}
		if e.ascii && !atWordBoundary(rs, i, i+len(e.text)) {
			continue
		}
		return e, true
	}
	return entry{}, false
}

func hasKind(kinds []entryKind, k entryKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func hasPrefixAt(rs []rune, i int, p []rune) bool {
	if len(rs)-i < len(p) {
		return false
	}
	for j, r := range p {
		if rs[i+j] != r {
			return false
		}
	}
	return true
}

func atWordBoundary(rs []rune, start, end int) bool {
	if start > 0 && isASCIIWordRune(rs[start-1]) {
		return false
	}
	if end < len(rs) && isASCIIWordRune(rs[end]) {
		return false
	}
	return true
}

// skipToken advances past a whole ASCII word, or a single rune otherwise.
func skipToken(rs []rune, i int) int {
	if !isASCIIWordRune(rs[i]) {
		return i + 1
	}
	for i < len(rs) && isASCIIWordRune(rs[i]) {
		i++
	}
	return i
}

func isASCIIWordRune(r rune) bool {
	return r <= unicode.MaxASCII && (r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isClauseBreak(r rune) bool {
	return strings.ContainsRune(".!?,;。、！？", r)
}

func isASCII(rs []rune) bool {
	for _, r := range rs {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
