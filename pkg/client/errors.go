package client

import (
	"errors"
	"fmt"
)

var (
	// ErrStatus marks a non-2xx response.
	ErrStatus = errors.New("client: unexpected status")
	// ErrDecode marks a response body that could not be decoded.
	ErrDecode = errors.New("client: malformed response body")
	// ErrEmptyArtifact marks a generate response without any bytes.
	ErrEmptyArtifact = errors.New("client: empty artifact")
	// ErrContract marks a payload rejected by the API contract.
	ErrContract = errors.New("client: contract violation")
)

// Kind classifies request failures.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindStatus   Kind = "status"
	KindDecode   Kind = "decode"
	KindContract Kind = "contract"
)

// Error describes a failed backend call.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("client: %s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}
