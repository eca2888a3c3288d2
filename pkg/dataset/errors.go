package dataset

import "fmt"

// LoadError is returned when the dataset cannot be produced. It is fatal to
// the request that triggered the load.
type LoadError struct {
	// ID and Field identify the offending reading; both are empty when the
	// store itself failed.
	ID    string
	Field string
	Value string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("dataset load failed: %v", e.Err)
	}
	return fmt.Sprintf("dataset load failed: reading %q has invalid %s %q: %v", e.ID, e.Field, e.Value, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
