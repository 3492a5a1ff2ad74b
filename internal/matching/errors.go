package matching

import (
	"errors"

	"github.com/spigell/mission-matcher/internal/ai"
)

var (
	// ErrMissingCredentials is returned before any work when no embedding provider is configured.
	ErrMissingCredentials = ai.ErrMissingCredentials

	ErrEmptyMission = errors.New("mission text is empty")
	ErrNoCandidates = errors.New("session has no candidates")
	ErrMissingScope = errors.New("user and session are required")

	// ErrTimeout means the search ran out of time. Embeddings persisted so far
	// are kept, so a retry has less work to do.
	ErrTimeout = errors.New("search timed out")
)

// InputError reports a request the caller has to fix.
type InputError struct {
	Err     error
	Message string
}

func (e *InputError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

func newInputError(err error, message string) error {
	return &InputError{Err: err, Message: message}
}

// IsInputError reports whether err is caused by the request itself.
func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}
