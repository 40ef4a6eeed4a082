package sync

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrTransport         = errors.New("sync transport failed")
	ErrInvalidSnapshot   = errors.New("invalid sync snapshot")
	ErrMerge             = errors.New("sync merge failed")
	ErrSkipRow           = errors.New("row skipped")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrNoPeer            = errors.New("no sync peer configured")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// TransportError ошибка обмена с удаленным узлом: сеть, не-2xx статус или битый ответ
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("sync transport: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("sync transport: status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("sync transport: status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// Retryable reports whether re-running the exchange may succeed.
func (e *TransportError) Retryable() bool {
	switch e.StatusCode {
	case 0, 409, 429, 502, 503, 504:
		return true
	}
	return false
}

func skipRow(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipRow, fmt.Sprintf(format, args...))
}
