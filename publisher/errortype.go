package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/baechuer/nanobus/nberrors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrorType is the closed taxonomy a wire-publish failure is classified
// into, reusing nberrors.Code so a publish failure and the AppError that
// eventually wraps it agree on one vocabulary. Connection/channel/timeout
// errors are the ones that additionally trigger a connection-pool reset
// before the caller is told to give up.
type ErrorType = nberrors.Code

const (
	ConnectionError = nberrors.CodeConnectionError
	ChannelError    = nberrors.CodeChannelError
	Timeout         = nberrors.CodeTimeout
	EncodingError   = nberrors.CodeEncodingError
	ConfigError     = nberrors.CodeConfigError
	Unknown         = nberrors.CodeUnknown
)

// resetsConnection reports whether this error type should force the
// connection pool to drop its connection before the next publish.
func resetsConnection(t ErrorType) bool {
	switch t {
	case ConnectionError, ChannelError, Timeout:
		return true
	default:
		return false
	}
}

func classify(err error) ErrorType {
	if err == nil {
		return Unknown
	}

	var jsonErr *json.MarshalerError
	if errors.As(err, &jsonErr) {
		return EncodingError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	if errors.Is(err, amqp.ErrClosed) {
		return ConnectionError
	}
	var connErr *amqp.Error
	if errors.As(err, &connErr) {
		return ChannelError
	}

	return Unknown
}
