package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParamError reports a parameter of a known action that could not be
// decoded: a value of the wrong JSON type, an unparseable timestamp or an
// unknown timezone. Field is the parameter's wire name.
type ParamError struct {
	Action Name
	Field  string
	Err    error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %v", e.Action, e.Field, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// asParamError attributes a decode failure of name's parameters to a field.
func asParamError(name Name, err error) *ParamError {
	var pe *ParamError
	if errors.As(err, &pe) {
		pe.Action = name
		return pe
	}

	field := "parameters"
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		// Nested fields come as a dotted path, e.g. "updates.start_datetime".
		field = typeErr.Field[strings.LastIndexByte(typeErr.Field, '.')+1:]
	}
	return &ParamError{Action: name, Field: field, Err: err}
}
