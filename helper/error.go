package helper

import "fmt"

// NewError wraps err with the action that failed. The wrapped error stays
// reachable for errors.Is checks against the model sentinel errors.
func NewError(action string, err error) error {
	return fmt.Errorf("error in %v: %w", action, err)
}
