package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"github.com/felixgeelhaar/autoheal/internal/errors"
)

// classifyError maps SDK failures onto coded errors.
func classifyError(provider string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeOracleTimeout, fmt.Sprintf("%s request timed out", provider), err).
			WithSuggestion("Increase oracle.timeout in autoheal.yaml")
	}

	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		he := errors.NewOracleAuthError(provider)
		he.Cause = err
		return he
	case http.StatusTooManyRequests:
		he := errors.NewOracleRateLimitError(provider, "")
		he.Cause = err
		return he
	}
	return errors.Wrap(errors.ErrCodeOracleAPI, fmt.Sprintf("%s API error", provider), err)
}

func statusCode(err error) int {
	var anthErr *anthropic.Error
	if stderrors.As(err, &anthErr) {
		return anthErr.StatusCode
	}
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
