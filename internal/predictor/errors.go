package predictor

import (
	"errors"
	"fmt"
)

// Kind classifies why a prediction call failed.
type Kind int

const (
	KindTransport Kind = iota
	KindTimeout
	KindConnectionRefused
	KindNonSuccessStatus
	KindMalformedResponse
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection_refused"
	case KindNonSuccessStatus:
		return "non_success_status"
	case KindMalformedResponse:
		return "malformed_response"
	case KindCanceled:
		return "canceled"
	default:
		return "transport"
	}
}

// Error is returned by Client.Predict for every failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindNonSuccessStatus {
		return fmt.Sprintf("prediction failed: status %d", e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("prediction failed (%s)", e.Kind)
	}
	return fmt.Sprintf("prediction failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err, or false when err is not a prediction error.
func KindOf(err error) (Kind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}
