package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/simvar-client/model"
)

// StatusError is an error that carries one of the closed set of operation
// statuses. Sentinels below are *StatusError values and can be matched with
// errors.Is.
type StatusError struct {
	Status model.Status
	msg    string
}

func (e *StatusError) Error() string { return e.msg }

// Is matches any StatusError with the same status so that errors returned from
// the peer compare equal to the package sentinels.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

var (
	ErrTimeout          = &StatusError{Status: model.StatusTimeout, msg: "request timed out"}
	ErrNotConnected     = &StatusError{Status: model.StatusNotConnected, msg: "not connected"}
	ErrNotFound         = &StatusError{Status: model.StatusNotFound, msg: "not found"}
	ErrRejected         = &StatusError{Status: model.StatusRejected, msg: "rejected by peer"}
	ErrInvalidParameter = &StatusError{Status: model.StatusInvalidParameter, msg: "invalid parameter"}
	ErrDisconnected     = &StatusError{Status: model.StatusDisconnected, msg: "connection closed"}
)

// errorFor returns the sentinel for status, or nil for StatusOK.
func errorFor(status model.Status) error {
	switch status {
	case model.StatusOK:
		return nil
	case model.StatusTimeout:
		return ErrTimeout
	case model.StatusNotConnected:
		return ErrNotConnected
	case model.StatusNotFound:
		return ErrNotFound
	case model.StatusInvalidParameter:
		return ErrInvalidParameter
	case model.StatusDisconnected:
		return ErrDisconnected
	default:
		return ErrRejected
	}
}

// StatusOf maps err onto the closed status set. Errors that carry no status
// are reported as Rejected, except context expiry which is a Timeout.
func StatusOf(err error) model.Status {
	if err == nil {
		return model.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.StatusTimeout
	}
	if errors.Is(err, model.ErrInvalidDataRequest) || errors.Is(err, model.ErrInvalidVariableRequest) {
		return model.StatusInvalidParameter
	}
	return model.StatusRejected
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
