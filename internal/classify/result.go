// Package classify assigns spending categories to transactions using a
// language-model completer, with defensive parsing of model output.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"finsight/internal/core"
)

// Result is one model classification for a transaction.
type Result struct {
	CategoryType core.CategoryType `json:"categoryType"`
	Label        string            `json:"categoryLabel"`
	Confidence   float64           `json:"confidence"`
	Reason       string            `json:"reason,omitempty"`
}

type rawResult struct {
	CategoryType  string  `json:"categoryType"`
	CategoryLabel string  `json:"categoryLabel"`
	Label         string  `json:"label"` // legacy alias for categoryLabel
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

// ParseResult extracts a classification from raw model output. Models
// routinely ignore formatting instructions, so it strips Markdown
// fences and any text around the outermost JSON object before
// decoding, and clamps confidence to [0, 1]. A response missing the
// category type or label is no classification at all.
func ParseResult(raw string, amount float64) (Result, error) {
	clean := extractJSONObject(raw)
	if clean == "" {
		return Result{}, fmt.Errorf("classify: no JSON object in model output")
	}

	var r rawResult
	if err := json.Unmarshal([]byte(clean), &r); err != nil {
		return Result{}, fmt.Errorf("classify: decode model output: %w", err)
	}
	if strings.TrimSpace(r.CategoryType) == "" {
		return Result{}, fmt.Errorf("classify: model output missing categoryType")
	}
	label := strings.TrimSpace(r.CategoryLabel)
	if label == "" {
		label = strings.TrimSpace(r.Label)
	}
	if label == "" {
		return Result{}, fmt.Errorf("classify: model output missing categoryLabel")
	}

	categoryType, ok := core.CategoryTypeFrom(r.CategoryType)
	if !ok {
		categoryType = core.CategoryOptional
		if amount >= 0 {
			categoryType = core.CategoryIncome
		}
	}

	result := Result{
		CategoryType: categoryType,
		Label:        core.NormalizeCategoryKey(label),
		Confidence:   clamp01(r.Confidence),
		Reason:       strings.TrimSpace(r.Reason),
	}
	return result, nil
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
