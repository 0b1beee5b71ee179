package kafka

import (
	"errors"

	"github.com/twmb/franz-go/pkg/kerr"
)

// FatalError marks a broker error that retrying cannot fix, such as an
// authorization failure or an unknown topic.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return "fatal broker error: " + e.Cause.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

func NewFatalError(cause error) error {
	return &FatalError{Cause: cause}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// classify wraps non-retriable kafka protocol errors as fatal. Anything that is not a
// protocol error (dial failures, timeouts, EOF) is left as is and treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var ke *kerr.Error
	if errors.As(err, &ke) && !ke.Retriable {
		return NewFatalError(err)
	}

	return err
}
