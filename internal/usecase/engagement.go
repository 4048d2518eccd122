package usecase

import (
	"regexp"
	"unicode/utf8"

	"companion-chat/internal/domain/model"
)

// Hint is the instruction that steers the model's style for one turn.
type Hint struct {
	Name string
	Text string
}

// Condition selects how an EngagementRule inspects a turn.
type Condition int

const (
	// WhenHistoryEmpty matches the first turn of a conversation.
	WhenHistoryEmpty Condition = iota
	// WhenMessageMatches matches when Pattern finds the new message.
	WhenMessageMatches
	// WhenRecentUserRepliesShort matches when any of the last Window user
	// messages is shorter than MinLength characters.
	WhenRecentUserRepliesShort
	// Always matches; use it for the fallback row.
	Always
)

type EngagementRule struct {
	Hint      Hint
	When      Condition
	Pattern   *regexp.Regexp
	Window    int
	MinLength int
}

var (
	// emotion keywords match as word prefixes: "feeling", "sadness", "lovely"
	emotionalPattern = regexp.MustCompile(`(?i)\b(feel|emotion|happy|sad|angry|excited|worried|anxious|love|hate)`)
	personalPattern  = regexp.MustCompile(`(?i)\b(i am|i'm|i’m|my|me|myself)\b`)
)

var (
	HintStart = Hint{
		Name: "start",
		Text: "This is the start of the conversation. Be warm and welcoming, and ask an open-ended question to get to know the user.",
	}
	HintEmotional = Hint{
		Name: "emotional",
		Text: "The user is sharing feelings. Validate their emotions and gently ask how they are processing them.",
	}
	HintPersonal = Hint{
		Name: "personal",
		Text: "The user is sharing something personal. Show genuine interest and ask for more detail.",
	}
	HintReengage = Hint{
		Name: "re-engage",
		Text: "The user's recent replies have been brief. Re-engage them from a different angle with a fresh, specific question.",
	}
	HintDefault = Hint{
		Name: "default",
		Text: "Build on the topics you have already discussed together and keep the conversation flowing naturally.",
	}
)

// DefaultRules is the decision table in priority order.
func DefaultRules() []EngagementRule {
	return []EngagementRule{
		{Hint: HintStart, When: WhenHistoryEmpty},
		{Hint: HintEmotional, When: WhenMessageMatches, Pattern: emotionalPattern},
		{Hint: HintPersonal, When: WhenMessageMatches, Pattern: personalPattern},
		{Hint: HintReengage, When: WhenRecentUserRepliesShort, Window: 3, MinLength: 50},
		{Hint: HintDefault, When: Always},
	}
}

// EngagementStrategist picks the first rule of its table that matches.
type EngagementStrategist struct {
	rules    []EngagementRule
	fallback Hint
}

func NewEngagementStrategist(rules []EngagementRule) *EngagementStrategist {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &EngagementStrategist{rules: rules, fallback: HintDefault}
}

// Select is a pure function of history (the turns before this one) and the
// new message.
func (e *EngagementStrategist) Select(history []model.Message, message string) Hint {
	for _, r := range e.rules {
		if r.matches(history, message) {
			return r.Hint
		}
	}
	return e.fallback
}

func (r EngagementRule) matches(history []model.Message, message string) bool {
	switch r.When {
	case WhenHistoryEmpty:
		return len(history) == 0
	case WhenMessageMatches:
		return r.Pattern != nil && r.Pattern.MatchString(message)
	case WhenRecentUserRepliesShort:
		seen := 0
		for i := len(history) - 1; i >= 0 && seen < r.Window; i-- {
			if history[i].Role != model.RoleUser {
				continue
			}
			seen++
			if utf8.RuneCountInString(history[i].Content) < r.MinLength {
				return true
			}
		}
		return false
	case Always:
		return true
	default:
		return false
	}
}
