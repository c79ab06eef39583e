// Package nberrors carries the closed error taxonomies as a
// single AppError type: a small enum of Code plus a wrapped cause.
package nberrors

import (
	"errors"
	"fmt"
)

// Code is a closed tag used both for branching and as a bounded metrics
// tag value (metrics tags must stay low-cardinality; every Code is one
// of the fixed constants below).
type Code string

// Publish error taxonomy.
const (
	CodeConnectionError Code = "connection_error"
	CodeChannelError    Code = "channel_error"
	CodeTimeout         Code = "timeout"
	CodeEncodingError   Code = "encoding_error"
	CodeConfigError     Code = "config_error"
	CodeUnknown         Code = "unknown"
)

// Consumer RabbitMQ error taxonomy.
const (
	CodeIOError          Code = "io_error"
	CodeConsumeSetup     Code = "consume_setup_error"
)

// Consumer internal error taxonomy.
const (
	CodeValidationError      Code = "validation_error"
	CodeInboxInsertError     Code = "inbox_insert_error"
	CodeInboxUpdateError     Code = "inbox_update_error"
	CodeUserCallbackError    Code = "user_callback_error"
	CodeRetryRepublishError  Code = "retry_republish_error"
	CodeDLXPublishError      Code = "dlx_publish_error"
	CodeAckError             Code = "ack_error"
	CodeConnectionReinitErr  Code = "connection_reinit_error"
)

// Outbox/publisher internal error taxonomy.
const (
	CodeTraceInsertError  Code = "trace_insert_error"
	CodeOutboxUpdateError Code = "outbox_update_error"
)

// AppError is the runtime's single error type: a closed code plus an
// optional wrapped cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New wraps err under code with a human-readable message.
func New(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err if it is (or wraps) an *AppError,
// otherwise CodeUnknown.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}
