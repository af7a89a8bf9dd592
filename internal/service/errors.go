package service

import (
	"errors"
	"fmt"
)

// Op names the stage of an exchange that failed.
type Op string

const (
	OpEncode  Op = "encode"
	OpSend    Op = "send"
	OpReceive Op = "receive"
	OpDecode  Op = "decode"
)

// NetworkError reports a request that could not be completed or a reply that
// could not be parsed.
type NetworkError struct {
	Endpoint string
	Op       Op
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Reason is the underlying cause, suitable for showing to a user.
func (e *NetworkError) Reason() string {
	if e.Err == nil {
		return string(e.Op) + " failed"
	}
	return e.Err.Error()
}

// Reason extracts a user-facing cause from err.
func Reason(err error) string {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Reason()
	}
	return err.Error()
}
