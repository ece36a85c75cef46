package scenario

import "fmt"

// GenerationError is the structured failure for an all-or-nothing generation
// run: the stage that failed and why. An instance whose generation fails is
// stopped without ever becoming active.
type GenerationError struct {
	Stage   string
	Reason  string
	Retried bool
}

func (e *GenerationError) Error() string {
	if e.Retried {
		return fmt.Sprintf("generation failed at stage %s after retry: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("generation failed at stage %s: %s", e.Stage, e.Reason)
}
