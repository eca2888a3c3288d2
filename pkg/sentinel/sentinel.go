// Package sentinel carries generated chart code through free-text tool
// observations by bracketing it between two fixed markers.
package sentinel

import (
	"fmt"
	"strings"
)

const (
	StartMarker = "CODIGO_MATPLOTLIB_START"
	EndMarker   = "CODIGO_MATPLOTLIB_END"
)

// ExtractionError is returned when a start marker is present but no end
// marker follows it.
type ExtractionError struct {
	Text string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("found %s without a following %s (text: %.200s)", StartMarker, EndMarker, e.Text)
}

// Wrap brackets code between the markers, each on its own line.
func Wrap(code string) string {
	return StartMarker + "\n" + code + "\n" + EndMarker
}

// Contains reports whether text carries a start marker.
func Contains(text string) bool {
	return strings.Contains(text, StartMarker)
}

// Extract returns the text between the first start marker and the first end
// marker after it, trimmed of whitespace and markdown fences. ok is false when
// there is no start marker.
func Extract(text string) (code string, ok bool, err error) {
	_, after, found := strings.Cut(text, StartMarker)
	if !found {
		return "", false, nil
	}
	body, _, found := strings.Cut(after, EndMarker)
	if !found {
		return "", false, &ExtractionError{Text: text}
	}
	return StripFences(body), true, nil
}

// StripFences removes surrounding whitespace and a markdown code fence,
// including its language tag, if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}
		s = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	}
	return strings.TrimSpace(s)
}
