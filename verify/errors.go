package verify

import (
	"errors"
	"fmt"
)

// ErrVerificationFailed matches every *Error via errors.Is.
var ErrVerificationFailed = errors.New("verification failed")

type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
)

// Error describes why a verification request produced no result.
type Error struct {
	Kind       Kind
	StatusCode int // set for KindStatus
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Err != nil {
			return fmt.Sprintf("verification failed: status %d: %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("verification failed: status %d", e.StatusCode)
	default:
		return fmt.Sprintf("verification failed: %s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrVerificationFailed }

// KindOf returns the failure kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
