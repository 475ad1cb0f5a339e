package fixgen

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// ParseError is a rejected oracle response. Field is empty when the whole
// document is malformed.
type ParseError struct {
	Code   errors.ErrorCode
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "invalid fix response: " + e.Reason
	}
	return fmt.Sprintf("invalid fix response: field %q %s", e.Field, e.Reason)
}

func fieldError(field, reason string) *ParseError {
	return &ParseError{Code: errors.ErrCodeParseInvalidField, Field: field, Reason: reason}
}

// StripCodeFence removes one optional Markdown fence (``` or ```json)
// around the text.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		lang := strings.TrimSpace(s[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{[\"") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResponse validates raw oracle text and returns the FixResponse, or
// a *ParseError. Nothing is accepted partially.
func ParseResponse(raw string) (*FixResponse, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return nil, &ParseError{Code: errors.ErrCodeParseEmptyResponse, Reason: "empty response"}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Code: errors.ErrCodeParseInvalidJSON, Reason: "not valid JSON: " + err.Error()}
	}
	if dec.More() {
		return nil, &ParseError{Code: errors.ErrCodeParseInvalidJSON, Reason: "not valid JSON: trailing data after object"}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ParseError{Code: errors.ErrCodeParseNotObject, Reason: "expected a JSON object, got " + jsonType(doc)}
	}

	var (
		resp FixResponse
		err  error
	)
	if resp.Diagnosis, err = requireString(obj, "diagnosis"); err != nil {
		return nil, err
	}
	if resp.Confidence, err = requireConfidence(obj); err != nil {
		return nil, err
	}
	if resp.SuggestedFix, err = parsePatches(obj); err != nil {
		return nil, err
	}
	if resp.TestCases, err = parseTestCases(obj); err != nil {
		return nil, err
	}
	if resp.RollbackPlan, err = requireString(obj, "rollbackPlan"); err != nil {
		return nil, err
	}
	return &resp, nil
}

func requireString(obj map[string]any, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", fieldError(field, "is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(field, "must be a string, got "+jsonType(v))
	}
	return s, nil
}

func optionalString(obj map[string]any, field, path string) (string, error) {
	v, ok := obj[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(path, "must be a string, got "+jsonType(v))
	}
	return s, nil
}

func requireConfidence(obj map[string]any) (float64, error) {
	v, ok := obj["confidence"]
	if !ok {
		return 0, fieldError("confidence", "is missing")
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fieldError("confidence", "must be a number in [0,1], got "+jsonType(v))
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fieldError("confidence", "must be a number in [0,1], got "+n.String())
	}
	return f, nil
}

func requireArray(obj map[string]any, field string) ([]any, error) {
	v, ok := obj[field]
	if !ok {
		return nil, fieldError(field, "is missing")
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fieldError(field, "must be an array, got "+jsonType(v))
	}
	return arr, nil
}

func parsePatches(obj map[string]any) ([]patch.CodePatch, error) {
	arr, err := requireArray(obj, "suggestedFix")
	if err != nil {
		return nil, err
	}

	patches := make([]patch.CodePatch, 0, len(arr))
	for i, item := range arr {
		prefix := fmt.Sprintf("suggestedFix[%d]", i)
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fieldError(prefix, "must be an object, got "+jsonType(item))
		}

		var p patch.CodePatch
		if p.FilePath, err = requireString(entry, "filePath"); err != nil {
			return nil, renamed(err, prefix)
		}
		if p.FilePath == "" {
			return nil, fieldError(prefix+".filePath", "must not be empty")
		}
		if p.StartLine, err = requireLine(entry, "startLine", prefix); err != nil {
			return nil, err
		}
		if p.EndLine, err = requireLine(entry, "endLine", prefix); err != nil {
			return nil, err
		}
		if p.EndLine < p.StartLine-1 {
			return nil, fieldError(prefix+".endLine", fmt.Sprintf("must not precede startLine %d", p.StartLine))
		}
		if p.OriginalCode, err = requireString(entry, "originalCode"); err != nil {
			return nil, renamed(err, prefix)
		}
		if p.ReplacementCode, err = requireString(entry, "replacementCode"); err != nil {
			return nil, renamed(err, prefix)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func requireLine(obj map[string]any, field, prefix string) (int, error) {
	path := prefix + "." + field
	v, ok := obj[field]
	if !ok {
		return 0, fieldError(path, "is missing")
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fieldError(path, "must be a non-negative integer, got "+jsonType(v))
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, fieldError(path, "must be a non-negative integer, got "+n.String())
	}
	return int(i), nil
}

func parseTestCases(obj map[string]any) ([]TestCase, error) {
	arr, err := requireArray(obj, "testCases")
	if err != nil {
		return nil, err
	}

	cases := make([]TestCase, 0, len(arr))
	for i, item := range arr {
		prefix := fmt.Sprintf("testCases[%d]", i)
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fieldError(prefix, "must be an object, got "+jsonType(item))
		}

		var tc TestCase
		if tc.Name, err = requireString(entry, "name"); err != nil {
			return nil, renamed(err, prefix)
		}
		if tc.Code, err = requireString(entry, "code"); err != nil {
			return nil, renamed(err, prefix)
		}
		if tc.Description, err = optionalString(entry, "description", prefix+".description"); err != nil {
			return nil, err
		}
		if tc.FilePath, err = optionalString(entry, "filePath", prefix+".filePath"); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// renamed prefixes the field of a nested ParseError with its parent path.
func renamed(err error, prefix string) error {
	if pe, ok := err.(*ParseError); ok && pe.Field != "" {
		return fieldError(prefix+"."+pe.Field, pe.Reason)
	}
	return err
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
