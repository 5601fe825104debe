package dispatch

import "fmt"

// ErrorKind classifies dispatch failures so front-ends can map them to their
// wire shapes (HTTP status, ws error frame) without string matching.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindInactive   ErrorKind = "inactive"
	KindValidation ErrorKind = "validation"
	KindDelivery   ErrorKind = "delivery"
	KindUpstream   ErrorKind = "upstream"
)

// Error is the structured result every dispatch failure is converted to at
// the boundary. No operation lets a fault propagate past the core.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func notFound(name string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Protocol '%s' not found", name)}
}

func inactive(name string) *Error {
	return &Error{Kind: KindInactive, Message: fmt.Sprintf("Protocol '%s' is not active", name)}
}

func validation(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error()}
}

func delivery(err error) *Error {
	return &Error{Kind: KindDelivery, Message: err.Error()}
}

func upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Message: err.Error()}
}
