package chat

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest = errors.New("bad request")
	// ErrMissingSession is returned when an anonymous caller sends no session id.
	ErrMissingSession = fmt.Errorf("%w: anonymous session id is required", ErrBadRequest)
	ErrEmptyMessage   = fmt.Errorf("%w: message is required", ErrBadRequest)
	ErrChatNotFound   = errors.New("chat not found")
)
