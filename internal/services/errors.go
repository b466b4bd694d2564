package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/platform/apierr"
)

var (
	ErrUnavailable     = errors.New("service unavailable")
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnAbandoned   = errors.New("turn closed before completion")
)

const (
	CodeInvalidRequest   = "invalid_request"
	CodeUnknownPersona   = "unknown_persona"
	CodeGenerationFailed = "generation_failed"
	CodeStoreFailed      = "store_failed"
	CodeModelNotFound    = "model_not_found"
	CodeUnsupported      = "unsupported"
	CodeModelFailed      = "model_failed"
)

func unavailable() error { return apierr.Unavailable(ErrUnavailable) }

func invalid(format string, args ...any) error {
	return apierr.BadRequest(CodeInvalidRequest, fmt.Errorf(format, args...))
}

func generationFailed(err error) error {
	return apierr.New(http.StatusInternalServerError, CodeGenerationFailed, fmt.Errorf("failed to generate response: %w", err))
}

func storeFailed(op string, err error) error {
	return apierr.New(http.StatusInternalServerError, CodeStoreFailed, fmt.Errorf("%s: %w", op, err))
}

func modelFailed(err error) error {
	switch {
	case errors.Is(err, llm.ErrModelNotFound):
		return apierr.New(http.StatusNotFound, CodeModelNotFound, err)
	case errors.Is(err, llm.ErrUnsupported):
		return apierr.New(http.StatusNotImplemented, CodeUnsupported, err)
	}
	return apierr.New(http.StatusBadGateway, CodeModelFailed, err)
}
