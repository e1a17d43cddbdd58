// Package rules holds ordered, data-driven text classifiers. A Set is
// evaluated top to bottom and the first matching Rule wins.
package rules

import (
	"regexp"
	"strings"
)

// Rule pairs a named predicate with the label or response it yields.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Response string
}

// Matches reports whether text satisfies the rule.
func (r Rule) Matches(text string) bool {
	return r.Pattern != nil && r.Pattern.MatchString(text)
}

// Set is an ordered rule list.
type Set []Rule

// Match returns the first rule matching text.
func (s Set) Match(text string) (Rule, bool) {
	for _, r := range s {
		if r.Matches(text) {
			return r, true
		}
	}
	return Rule{}, false
}

func ci(expr string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + expr) }

// Identity returns the rules that detect questions about the assistant's
// own identity, provenance or ownership. Every rule answers with answer.
func Identity(answer string) Set {
	pats := []struct{ name, expr string }{
		{"who_are_you", `who (are|is) (you|empatalk|the agent)`},
		{"what_model", `what (ai|model|agent|bot) (are|is) (this|you|empatalk)`},
		{"which_model", `which ai model`},
		{"your_name", `what is your name`},
		{"who_created", `who created (you|empatalk|the agent|this)`},
		{"who_made", `who made (you|empatalk|the agent|this)`},
		{"are_you_vendor", `are you (alibaba|openai|gpt|chatgpt|cloud)`},
		{"vendor_cloud", `what is alibaba cloud`},
		{"who_owns", `who owns you`},
	}
	out := make(Set, 0, len(pats))
	for _, p := range pats {
		out = append(out, Rule{Name: p.name, Pattern: ci(p.expr), Response: answer})
	}
	return out
}

// Emotion labels.
const (
	EmotionAnxiety = "anxiety"
	EmotionSadness = "sadness"
	EmotionAnger   = "anger"
	EmotionFear    = "fear"
	EmotionNeutral = "neutral"
)

// Intent labels.
const (
	IntentGuidance   = "seeking_guidance"
	IntentMotivation = "seeking_motivation"
	IntentSupport    = "emotional_support"
	IntentDeescalate = "deescalation"
	IntentGeneral    = "general_support"
)

var emotionRules = Set{
	{Name: EmotionAnxiety, Pattern: ci(`anxious|anxiety|nervous|panic`), Response: EmotionAnxiety},
	{Name: EmotionSadness, Pattern: ci(`sad|down|cry|alone|depress`), Response: EmotionSadness},
	{Name: EmotionAnger, Pattern: ci(`angry|mad|rage`), Response: EmotionAnger},
	{Name: EmotionFear, Pattern: ci(`fear|scared|terrified`), Response: EmotionFear},
}

var intentRules = Set{
	{Name: IntentGuidance, Pattern: ci(`help|advice|what do i do|how to`), Response: IntentGuidance},
	{Name: IntentMotivation, Pattern: ci(`anxious|anxiety|nervous|panic`), Response: IntentMotivation},
	{Name: IntentSupport, Pattern: ci(`sad|down|cry|alone|depressed`), Response: IntentSupport},
	{Name: IntentDeescalate, Pattern: ci(`angry|mad|rage`), Response: IntentDeescalate},
}

// intentByEmotion is consulted when no intent rule matches the text.
var intentByEmotion = map[string]string{
	EmotionAnxiety: IntentMotivation,
	EmotionSadness: IntentSupport,
	EmotionAnger:   IntentDeescalate,
}

// Emotion returns the emotion label for text, or EmotionNeutral.
func Emotion(text string) string {
	if r, ok := emotionRules.Match(strings.TrimSpace(text)); ok {
		return r.Response
	}
	return EmotionNeutral
}

// Intent returns the intent label for text. emotion, when known, is used
// as a fallback signal before defaulting to IntentGeneral.
func Intent(text, emotion string) string {
	if r, ok := intentRules.Match(strings.TrimSpace(text)); ok {
		return r.Response
	}
	if in, ok := intentByEmotion[emotion]; ok {
		return in
	}
	return IntentGeneral
}
