// Package openai provides the embedding and speech synthesis clients for
// OpenAI-compatible HTTP APIs, including self-hosted speech servers.
package openai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/lector/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// ErrDimensionMismatch is returned when the API returns a vector of the wrong size.
var ErrDimensionMismatch = errors.New("embedding has unexpected dimensions")

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// mapError classifies API errors. Client errors other than rate limiting
// are wrapped in domain.ErrValidation since repeating the request cannot help.
func mapError(op string, err error) error {
	status := statusCode(err)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrValidation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
