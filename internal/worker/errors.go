package worker

import (
	"errors"

	"github.com/aws/smithy-go"
)

// ValidationError marks a payload-level failure that is permanent: the
// message is quarantined instead of retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// isTransient reports whether an error came back from the storage service
// itself (permission, throttling, service fault). Transient and unclassified
// errors are both left for queue redelivery; the tag only changes the log.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr)
}
