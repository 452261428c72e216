package hal

import (
	"fmt"

	"github.com/tphakala/camhal/internal/errors"
)

const componentHAL = "hal"

// Admission errors returned by ProcessCaptureRequest. Returned errors carry
// the cause and match these sentinels with errors.Is.
var (
	ErrInvalidRequest    = sentinel(errors.CategoryInvalidRequest)
	ErrMissingRequestID  = sentinel(errors.CategoryMissingRequestID)
	ErrFenceFailed       = sentinel(errors.CategoryFence)
	ErrParameterRejected = sentinel(errors.CategoryParameter)
	ErrDispatchFailed    = sentinel(errors.CategoryDispatch)
	ErrNotConfigured     = sentinel(errors.CategoryNotConfigured)
	ErrFlushing          = sentinel(errors.CategoryFlushing)
)

// Configuration errors returned by ConfigureStreams
var (
	ErrNoStreams            = sentinel(errors.CategoryNoStreams)
	ErrMultipleInputStreams = sentinel(errors.CategoryMultipleInputStreams)
	ErrInvalidStream        = sentinel(errors.CategoryInvalidConfiguration)
	ErrChannelCreate        = sentinel(errors.CategoryChannelCreate)
)

// Session and device lifecycle errors
var (
	ErrBusy            = sentinel(errors.CategoryCameraBusy)
	ErrUnknownCamera   = sentinel(errors.CategoryUnknownCamera)
	ErrInvalidTemplate = sentinel(errors.CategoryInvalidTemplate)
	ErrClosed          = sentinel(errors.CategoryState)
)

func sentinel(category errors.ErrorCategory) *errors.EnhancedError {
	return errors.New(nil).Component(componentHAL).Category(category).Build()
}

// halError builds an error in category wrapping a formatted cause
func halError(category errors.ErrorCategory, format string, args ...any) *errors.ErrorBuilder {
	return errors.New(fmt.Errorf(format, args...)).
		Component(componentHAL).
		Category(category)
}
