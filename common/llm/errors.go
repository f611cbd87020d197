package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Error kinds reported in logs for failed provider calls.
const (
	ErrorKindCanceled    = "canceled"
	ErrorKindTimeout     = "timeout"
	ErrorKindRateLimited = "rate_limited"
	ErrorKindServer      = "server_error"
	ErrorKindAuth        = "auth_error"
	ErrorKindClient      = "client_error"
	ErrorKindNetwork     = "network_error"
)

// IsCanceled reports whether err stems from a canceled turn rather than a provider fault.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ErrorKind classifies a provider error for structured logging.
// The agent loops never retry; this only labels the failure.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return kindFromStatus(openaiErr.StatusCode)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return kindFromStatus(anthropicErr.StatusCode)
	}

	return ErrorKindNetwork
}

func kindFromStatus(status int) string {
	switch {
	case status == 429:
		return ErrorKindRateLimited
	case status == 401 || status == 403:
		return ErrorKindAuth
	case status >= 500:
		return ErrorKindServer
	default:
		return ErrorKindClient
	}
}
