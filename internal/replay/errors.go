package replay

import "errors"

var (
	ErrNoDirectory        = errors.New("replay directory must be provided")
	ErrRecorderClosed     = errors.New("recorder is closed")
	ErrUnsupportedVersion = errors.New("unsupported replay manifest version")
	ErrUnknownStream      = errors.New("unknown replay stream extension")
)
