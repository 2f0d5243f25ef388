package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FieldError is an unknown key anywhere in the file.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("unrecognised argument supplied: '%s' - please remove", e.Field)
}

// BoolError is a value that is not one of the accepted boolean spellings.
type BoolError struct {
	Value string
}

func (e *BoolError) Error() string {
	return fmt.Sprintf("invalid boolean value %q supplied - replace with yes/no", e.Value)
}

const unknownFieldPrefix = "json: unknown field "

// translateDecodeError turns encoding/json's unknown field error into a FieldError.
func translateDecodeError(err error) error {
	var be *BoolError
	if errors.As(err, &be) {
		return be
	}
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, unknownFieldPrefix); ok {
		if name, uerr := strconv.Unquote(rest); uerr == nil {
			return &FieldError{Field: name}
		}
	}
	return err
}
