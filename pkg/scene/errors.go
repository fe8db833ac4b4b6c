package scene

import "fmt"

// NotFoundError reports that a referenced object id is absent from the
// scene.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %q not found", e.ID)
}

// InvalidColorError reports a color string that does not match the
// #rrggbb hex format.
type InvalidColorError struct {
	Color string
}

func (e *InvalidColorError) Error() string {
	return fmt.Sprintf("invalid color %q, expected #rrggbb hex", e.Color)
}

// ValidationError reports a rejected field value, such as a non-positive
// dimension or scale component.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
