package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodePrecondition   Code = "PRECONDITION_FAILED"
	CodeNotFound       Code = "NOT_FOUND"
	CodePoolExhausted  Code = "POOL_EXHAUSTED"
	CodeConnectivity   Code = "CONNECTIVITY_FAILURE"
	CodeSequence       Code = "SEQUENCE_CONFLICT"
	CodePartialClaim   Code = "PARTIAL_CLAIM"
	CodeTransform      Code = "TRANSFORM_FAILURE"
	CodeReplication    Code = "REPLICATION_FAILURE"
	CodeManualRecovery Code = "MANUAL_RECOVERY_REQUIRED"
	CodeLineFailure    Code = "LINE_FAILURE"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeDependency     Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodePrecondition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "precondition failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodePoolExhausted: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "database pool exhausted",
		DetailsAllowed: false,
	},
	CodeConnectivity: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "database unavailable",
		DetailsAllowed: false,
	},
	CodeSequence: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      true,
		PublicMessage:  "sequence allocation conflict",
		DetailsAllowed: false,
	},
	CodePartialClaim: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "some orders are no longer eligible",
		DetailsAllowed: true,
	},
	CodeTransform: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "order line transform failed",
		DetailsAllowed: true,
	},
	CodeReplication: {
		HTTPStatus:     http.StatusBadGateway,
		Retryable:      false,
		PublicMessage:  "line replication failed",
		DetailsAllowed: true,
	},
	CodeManualRecovery: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "load requires manual recovery",
		DetailsAllowed: true,
	},
	CodeLineFailure: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "inventory line rejected",
		DetailsAllowed: true,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
