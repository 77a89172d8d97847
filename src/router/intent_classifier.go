package router

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

type keywordRule struct {
	intent     models.Intent
	confidence float64
	phrases    []phrase
}

// phrase is a sequence of words. Unless whole is set, the last word also
// matches inflections ("bugs", "budgeting", "categorized").
type phrase struct {
	words []string
	whole bool
}

// Rules are evaluated in order; the first rule with any matching phrase wins.
var defaultRules = []keywordRule{
	newRule(models.IntentRoast, 0.9,
		keywords("roast", "mock", "burn"),
		wholeWords("hey", "hi", "hello", "what's up")),
	newRule(models.IntentAdvice, 0.85,
		keywords("should i", "is it worth", "can i afford", "advice", "recommend", "budget")),
	newRule(models.IntentCategorize, 0.9,
		keywords("category", "categorize")),
	newRule(models.IntentSensitive, 0.9,
		keywords("broken", "not working", "bug", "issue")),
}

func newRule(intent models.Intent, confidence float64, groups ...[]phrase) keywordRule {
	rule := keywordRule{intent: intent, confidence: confidence}
	for _, g := range groups {
		rule.phrases = append(rule.phrases, g...)
	}
	return rule
}

func keywords(texts ...string) []phrase {
	phrases := make([]phrase, 0, len(texts))
	for _, t := range texts {
		phrases = append(phrases, phrase{words: tokenize(t)})
	}
	return phrases
}

// wholeWords is for short greetings, where a prefix match would fire on
// unrelated words ("hi" in "hiking").
func wholeWords(texts ...string) []phrase {
	phrases := keywords(texts...)
	for i := range phrases {
		phrases[i].whole = true
	}
	return phrases
}

// IntentClassifier resolves most messages with local keyword rules and only
// asks the remote classifier when nothing matches.
type IntentClassifier struct {
	rules   []keywordRule
	remote  models.RemoteIntentClassifier
	timeout time.Duration
}

func NewIntentClassifier(cfg *config.ClassifierConfig, remote models.RemoteIntentClassifier) *IntentClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &IntentClassifier{
		rules:   defaultRules,
		remote:  remote,
		timeout: timeout,
	}
}

// Classify never fails: remote errors and timeouts fall back to advice with
// zero confidence, which routes to the most careful model.
func (c *IntentClassifier) Classify(ctx context.Context, message string) models.Classification {
	if result, ok := c.MatchHeuristic(message); ok {
		return result
	}

	fallback := models.Classification{
		Intent:     models.IntentAdvice,
		Confidence: 0.0,
		Source:     models.SourceRemote,
	}

	if c.remote == nil {
		return fallback
	}

	remoteCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.remote.ClassifyRemote(remoteCtx, message)
	if err != nil || result == nil {
		logger.Log.WithError(err).Warn("Remote intent classification failed, defaulting to advice")
		return fallback
	}

	result.Source = models.SourceRemote
	logger.Log.WithFields(logrus.Fields{
		"intent":     result.Intent,
		"confidence": result.Confidence,
		"rationale":  result.Rationale,
	}).Debug("Remote intent classification")

	return *result
}

// MatchHeuristic applies the keyword rules without any network call.
func (c *IntentClassifier) MatchHeuristic(message string) (models.Classification, bool) {
	words := tokenize(message)
	if len(words) == 0 {
		return models.Classification{}, false
	}

	for _, rule := range c.rules {
		for _, p := range rule.phrases {
			if containsPhrase(words, p) {
				return models.Classification{
					Intent:     rule.intent,
					Confidence: rule.confidence,
					Source:     models.SourceHeuristic,
				}, true
			}
		}
	}

	return models.Classification{}, false
}

// tokenize lowercases text and splits it into words, keeping apostrophes so
// "what's" stays one word. Typographic apostrophes are folded to ASCII.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	lower = strings.NewReplacer("’", "'", "‘", "'").Replace(lower)

	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// containsPhrase reports whether phrase occurs as consecutive words.
func containsPhrase(words []string, p phrase) bool {
	n := len(p.words)
	if n == 0 || n > len(words) {
		return false
	}

	for i := 0; i+n <= len(words); i++ {
		match := true
		for j, want := range p.words {
			inflectable := !p.whole && j == n-1
			if !wordMatches(words[i+j], want, inflectable) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

// wordMatches compares a message word with a keyword. An inflectable keyword
// of three or more letters matches any word starting with its stem, where a
// trailing "e" or "y" is dropped from keywords of five or more letters so
// "issue" matches "issues" and "category" matches "categories".
func wordMatches(word, keyword string, inflectable bool) bool {
	if !inflectable || len(keyword) < 3 {
		return word == keyword
	}
	stem := keyword
	if len(stem) >= 5 && (strings.HasSuffix(stem, "e") || strings.HasSuffix(stem, "y")) {
		stem = stem[:len(stem)-1]
	}
	return strings.HasPrefix(word, stem)
}
