package chart

import "fmt"

// RenderError reports a chart that could not be drawn. Code is the spec
// text exactly as received so callers can show it.
type RenderError struct {
	Message string
	Code    string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render chart: %s", e.Message)
}
