package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/service/llm"
)

const (
	titleSystemPrompt = "You are a title generator. Create short, clear titles (3-5 words max) that capture the main topic. Return ONLY the title, no quotes, no markdown, no preamble."

	titleUserPrompt = `Create a title for this question:
"%s"

Examples:
"What is machine learning?" → Machine Learning Overview
"How do I fix my car?" → Car Repair Help
"Explain quantum physics" → Quantum Physics
"What's in my resume?" → Resume Review
"Hi / Hello / Good morning / How are you etc" → Greeting
Title:`

	titleTemperature   = 0.3
	titleMaxTokens     = 15
	titlePromptChars   = 200
	minTitleChars      = 3
	maxLLMTitleChars   = 100
	maxFallbackChars   = 80
	questionScanChars  = 100
	questionTitleWords = 6
	keywordScanWords   = 15
	keywordTitleWords  = 5
	rawTitleChars      = 50
)

var (
	markdownPattern      = regexp.MustCompile("\\*\\*|__|\\*|_|#+\\s*|`")
	trailingPunctPattern = regexp.MustCompile(`[.!,;:]+$`)

	labelPrefixes = []string{"title:", "subject:", "topic:", "summary:"}

	questionStopWords = toSet(
		"what", "how", "why", "when", "where", "who", "which",
		"is", "are", "do", "does", "can", "could", "would", "should", "will",
	)

	keywordStopWords = toSet(
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
		"be", "have", "has", "had", "do", "does", "did", "will", "would",
		"should", "could", "may", "might", "must", "can",
		"what", "how", "why", "when", "where", "who", "which",
		"this", "that", "these", "those", "i", "me", "my", "you", "your",
	)
)

// Titler derives a short session title from the first user message.
type Titler struct {
	completer llm.Completer
	log       *logger.Logger
}

// NewTitler completer 为 nil 时只使用规则提取
func NewTitler(completer llm.Completer, log *logger.Logger) *Titler {
	return &Titler{completer: completer, log: log}
}

// Generate 先尝试 LLM，失败或结果无效时回退到规则提取，不返回错误
func (t *Titler) Generate(ctx context.Context, firstMessage string) string {
	if t.completer != nil {
		prompt := fmt.Sprintf(titleUserPrompt, truncateRunes(firstMessage, titlePromptChars))
		raw, err := t.completer.Complete(ctx, titleSystemPrompt, prompt,
			llm.WithTemperature(titleTemperature),
			llm.WithMaxTokens(titleMaxTokens),
		)
		if err != nil {
			t.log.Warn("title generation failed, using fallback", "error", err)
		} else if title := CleanTitle(raw); utf8.RuneCountInString(title) >= minTitleChars {
			return truncateRunes(title, maxLLMTitleChars)
		} else {
			t.log.Debug("invalid generated title, using fallback", "raw", raw)
		}
	}
	return FallbackTitle(firstMessage)
}

// CleanTitle strips markdown, quotes, label prefixes and trailing punctuation
// from a model-generated title. Question marks are kept.
func CleanTitle(title string) string {
	if title == "" {
		return ""
	}
	title = markdownPattern.ReplaceAllString(strings.TrimSpace(title), "")
	title = strings.Trim(title, "\"'“”‘’")

	for _, prefix := range labelPrefixes {
		if len(title) >= len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			title = strings.TrimSpace(title[len(prefix):])
		}
	}

	title = trailingPunctPattern.ReplaceAllString(title, "")
	title = capitalizeFirst(title)
	return strings.TrimSpace(title)
}

// FallbackTitle deterministic title extraction without any external call.
func FallbackTitle(message string) string {
	clean := strings.TrimSpace(message)

	if strings.Contains(truncateRunes(clean, questionScanChars), "?") {
		clause := strings.SplitN(clean, "?", 2)[0]
		var words []string
		for _, w := range strings.Fields(strings.ToLower(clause)) {
			if !questionStopWords[w] {
				words = append(words, w)
			}
		}
		if len(words) > 0 {
			title := titleCase(firstN(words, questionTitleWords))
			if utf8.RuneCountInString(title) >= minTitleChars {
				return truncateRunes(title, maxFallbackChars)
			}
		}
	}

	var keywords []string
	for _, w := range firstN(strings.Fields(strings.ToLower(clean)), keywordScanWords) {
		w = strings.Trim(w, "?.!,;:")
		if !keywordStopWords[w] {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) > 0 {
		return truncateRunes(titleCase(firstN(keywords, keywordTitleWords)), maxFallbackChars)
	}

	if utf8.RuneCountInString(clean) > rawTitleChars {
		return truncateRunes(clean, rawTitleChars) + "..."
	}
	return clean
}

// titleCase joins words and cases them like Python's str.title(): a cased
// letter is title-cased after an uncased character and lower-cased otherwise,
// so "gpt-4" becomes "Gpt-4" and "state-of-the-art" becomes "State-Of-The-Art".
func titleCase(words []string) string {
	var b strings.Builder
	prevCased := false
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
			prevCased = false
		}
		for _, r := range w {
			if prevCased {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToTitle(r))
			}
			prevCased = isCased(r)
		}
	}
	return b.String()
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func firstN(words []string, n int) []string {
	if len(words) > n {
		return words[:n]
	}
	return words
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
