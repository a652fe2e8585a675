package export

import "errors"

// Stage sentinels. Errors returned by Run and reasons passed to Message.Fail
// wrap one of these, so callers can tell which stage broke with errors.Is.
var (
	ErrTransform = errors.New("transform error")
	ErrEncode    = errors.New("encode error")
	ErrSinkWrite = errors.New("sink write error")
	ErrAck       = errors.New("ack error")
)
