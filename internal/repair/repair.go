// Package repair recovers structured output from inference providers that
// stopped mid-token-budget. Everything in it is a pure function of its
// input: the same truncated string always repairs to the same object.
package repair

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Analysis is the fixed 3-field schema expected from the repository
// analysis call.
type Analysis struct {
	MainPurpose                  string `json:"mainPurpose"`
	KeyTechnologiesAndFrameworks string `json:"keyTechnologiesAndFrameworks"`
	MainFeaturesAndFunctionality string `json:"mainFeaturesAndFunctionality"`
}

// Placeholder substitutes a field lost to truncation.
const Placeholder = "Not available due to response truncation."

const (
	fieldMainPurpose  = "mainPurpose"
	fieldKeyTech      = "keyTechnologiesAndFrameworks"
	fieldMainFeatures = "mainFeaturesAndFunctionality"
)

var fieldOrder = []string{fieldMainPurpose, fieldKeyTech, fieldMainFeatures}

// Result is the recovered analysis. FinishReason is "length" when textual
// repair of a truncated payload was needed, empty otherwise.
type Result struct {
	Analysis     Analysis
	FinishReason string
	Repaired     bool
}

// Repair parses raw model output into an Analysis, repairing truncated JSON
// when direct parsing fails. It never fabricates success: if the repaired
// text still does not parse, the original parse error is returned.
func Repair(raw string) (Result, error) {
	text := stripFences(raw)

	// Common case: the payload is intact. Keep this path cheap.
	var direct map[string]any
	parseErr := json.Unmarshal([]byte(text), &direct)
	if parseErr == nil {
		analysis, clean := coerce(direct)
		if clean {
			return Result{Analysis: analysis}, nil
		}
		// Parsed but off-schema (array values, missing fields): coerced
		// without the truncation tag, since nothing was cut off.
		return Result{Analysis: analysis, Repaired: true}, nil
	}

	if repaired, ok := repairTruncated(text); ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(repaired), &m); err == nil {
			analysis, _ := coerce(m)
			return Result{Analysis: analysis, FinishReason: "length", Repaired: true}, nil
		}
	}

	// Repair did not produce valid JSON: surface the original failure
	// rather than fabricating a success.
	return Result{}, fmt.Errorf("parsing structured output: %w", parseErr)
}

// repairTruncated rebuilds a parseable object from truncated JSON text.
// Returns ok=false when no plausible cut point exists.
func repairTruncated(text string) (string, bool) {
	keyToken := `"` + fieldMainFeatures + `"`
	keyIdx := strings.Index(text, keyToken)

	if keyIdx < 0 {
		// The third field never started: close the object after the last
		// intact string and synthesize the field.
		body, ok := closeAtLastQuote(text)
		if !ok {
			return "", false
		}
		return body + `,` + keyToken + `:` + quote(Placeholder) + `}`, true
	}

	// The third field started but its value (or the array of a list-valued
	// field) is incomplete: cut at the last complete item boundary.
	if cut := lastCompleteItemEnd(text); cut >= 0 {
		body := text[:cut+1]
		return closeOpenScopes(body, keyIdx), true
	}

	// No complete item at all: fall back to the last unescaped quote.
	body, ok := closeAtLastQuote(text)
	if !ok {
		return "", false
	}
	return closeOpenScopes(body, keyIdx), true
}

// closeAtLastQuote truncates text just after its last intact string value.
// A dangling unterminated string (the truncation landed mid-value or
// mid-key) is dropped first, and so is any key left without a value by the
// cut: keeping it would not reparse.
func closeAtLastQuote(text string) (string, bool) {
	if endsInsideString(text) {
		q := lastUnescapedQuote(text)
		if q < 0 {
			return "", false
		}
		text = text[:q]
	}

	for {
		q := lastUnescapedQuote(text)
		if q < 0 {
			return "", false
		}
		p := prevUnescapedQuote(text, q)
		if p < 0 {
			return "", false
		}

		// A string preceded by ':' is a value; anything else is a key (or
		// an orphaned array element) and gets dropped.
		if lastNonSpace(text[:p]) == ':' {
			return strings.TrimRight(text[:q+1], " \t\r\n"), true
		}
		text = strings.TrimSuffix(strings.TrimRight(text[:p], " \t\r\n"), ",")
	}
}

// closeOpenScopes closes an array left open after the third field's key,
// then the object. Whether an array is open is inferred from bracket
// presence after the key within the truncated body.
func closeOpenScopes(body string, keyIdx int) string {
	if keyIdx >= 0 && keyIdx < len(body) {
		after := body[keyIdx:]
		if strings.Contains(after, "[") && !strings.Contains(after, "]") {
			body += "]"
		}
	}
	return body + "}"
}

// coerce maps parsed JSON onto the schema: string values pass through,
// arrays are joined with newlines, anything absent becomes the placeholder.
// clean is true only when all three fields were already plain non-empty
// strings.
func coerce(m map[string]any) (Analysis, bool) {
	clean := true
	values := make(map[string]string, len(fieldOrder))

	for _, key := range fieldOrder {
		switch v := m[key].(type) {
		case string:
			if v == "" {
				values[key] = Placeholder
				clean = false
			} else {
				values[key] = v
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				} else {
					parts = append(parts, fmt.Sprint(item))
				}
			}
			values[key] = strings.Join(parts, "\n")
			clean = false
		default:
			values[key] = Placeholder
			clean = false
		}
	}

	return Analysis{
		MainPurpose:                  values[fieldMainPurpose],
		KeyTechnologiesAndFrameworks: values[fieldKeyTech],
		MainFeaturesAndFunctionality: values[fieldMainFeatures],
	}, clean
}

// stripFences removes a markdown code-fence wrapper (``` or ```json) if the
// payload arrived inside one.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		// Drop the language tag line (e.g. "json").
		t = t[i+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
