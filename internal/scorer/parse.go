package scorer

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
)

// ParseScores extracts the four sub-scores from a model reply. Models are
// told to return bare JSON but sometimes wrap it in markdown fences or drop
// a brace, so parsing degrades through three attempts: the raw text, the
// text with fences stripped, then the text with braces rebalanced. Anything
// still unreadable is a parse error, which the retry policy treats as
// permanent.
func ParseScores(raw string) (*model.QualityScores, *resilience.StageError) {
	candidates := []string{
		strings.TrimSpace(raw),
		stripFences(raw),
		balanceBraces(stripFences(raw)),
	}

	var lastErr error
	for _, text := range candidates {
		if text == "" {
			continue
		}
		var fields map[string]float64
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			lastErr = err
			continue
		}
		scores, err := fromFields(fields)
		if err != nil {
			lastErr = err
			continue
		}
		return scores, nil
	}

	return nil, &resilience.StageError{
		Kind: resilience.KindParse,
		Err:  eris.Wrap(lastErr, "scorer: parse scores"),
	}
}

func fromFields(fields map[string]float64) (*model.QualityScores, error) {
	scores := model.QualityScores{}
	for key, dst := range map[string]*float64{
		"memorability":  &scores.Memorability,
		"pronunciation": &scores.Pronunciation,
		"visual_appeal": &scores.VisualAppeal,
		"brandability":  &scores.Brandability,
	} {
		v, ok := fields[key]
		if !ok {
			return nil, eris.Errorf("scorer: missing key %q", key)
		}
		*dst = v
	}
	if !scores.Valid() {
		return nil, eris.Errorf("scorer: scores out of range: %+v", scores)
	}
	return &scores, nil
}

// stripFences unwraps a markdown code block, dropping any language tag on
// the opening fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return strings.ReplaceAll(s, "```", "")
	}
	parts := strings.SplitN(s, "```", 3)
	if len(parts) < 2 {
		return s
	}
	body := parts[1]
	if idx := strings.Index(body, "\n"); idx >= 0 && !strings.HasPrefix(strings.TrimSpace(body), "{") {
		body = body[idx+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

// balanceBraces restores a dropped outer brace on either end.
func balanceBraces(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.HasPrefix(s, "{") {
		s = "{" + s
	}
	if !strings.HasSuffix(s, "}") {
		s = s + "}"
	}
	return s
}
