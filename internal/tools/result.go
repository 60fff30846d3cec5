package tools

import "errors"

// Result is the unified return type from capability execution.
type Result struct {
	Data    any    `json:"data,omitempty"`    // structured payload on success
	ForLLM  string `json:"for_llm,omitempty"` // error description sent back to the model
	IsError bool   `json:"is_error"`          // marks error
	Kind    string `json:"kind,omitempty"`    // error kind, set by the registry
	Class   string `json:"class,omitempty"`   // failure class from the implementation
	Err     error  `json:"-"`                 // internal error (not serialized)
}

func NewResult(data any) *Result {
	return &Result{Data: data}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// FailResult builds an error result from err, keeping its failure class.
func FailResult(err error) *Result {
	return ErrorResult(err.Error()).WithError(err)
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	if class := ClassOf(err); class != "" {
		r.Class = class
	}
	return r
}

func (r *Result) withKind(kind string) *Result {
	r.Kind = kind
	return r
}

// Is reports whether the result's error matches target.
func (r *Result) Is(target error) bool {
	return r.Err != nil && errors.Is(r.Err, target)
}
