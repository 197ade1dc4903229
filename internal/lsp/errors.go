package lsp

import (
	"context"
	"errors"
	apperrors "scriptls/internal/core/errors"
)

// toResponseError maps an error onto a JSON-RPC error. Domain errors the
// user can act on become RequestFailed so the editor shows their message.
func toResponseError(err error) *responseError {
	var rerr *responseError
	if errors.As(err, &rerr) {
		return rerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &responseError{Code: codeRequestCancelled, Message: "request cancelled"}
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case apperrors.CodeInternal, apperrors.CodeProtocol:
			return &responseError{Code: codeInternalError, Message: de.Message}
		default:
			return &responseError{Code: codeRequestFailed, Message: de.Message}
		}
	}
	return &responseError{Code: codeInternalError, Message: err.Error()}
}

func isUnavailable(err error) bool {
	return err != nil && apperrors.IsCode(err, apperrors.CodeUnavailable)
}
