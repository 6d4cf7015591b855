package whatsapp

import (
	"errors"
	"fmt"
)

// TransportError reports a failed call against the Cloud API. Timeout is set
// when the deadline elapsed, so callers can decide whether re-sending the
// outbound message is worth it; all other transport failures are terminal
// for the attempt.
type TransportError struct {
	Op         string // "send", "media_url", "download"
	StatusCode int    // zero when the request never completed
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("whatsapp %s timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("whatsapp %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("whatsapp %s failed: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}
