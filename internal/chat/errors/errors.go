package errors

import "errors"

var ErrInvalidParticipant = errors.New("invalid conversation participant")
