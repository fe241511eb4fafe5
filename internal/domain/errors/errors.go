package errors

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationError struct {
	Items []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Items) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, item.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, msg string) {
	e.Items = append(e.Items, FieldError{
		Field:   field,
		Message: msg,
	})
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func (e ValidationError) HasAny() bool {
	return len(e.Items) > 0
}

// Fields maps field name to its first message, the shape the admin API returns.
func (e ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Items))
	for _, item := range e.Items {
		if _, ok := out[item.Field]; ok {
			continue
		}
		out[item.Field] = item.Message
	}
	return out
}

// Err returns nil when nothing was recorded.
func (e ValidationError) Err() error {
	if e.HasAny() {
		return e
	}
	return nil
}
