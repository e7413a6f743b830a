package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStructuredErrorUnwrap(t *testing.T) {
	root := errors.New("connection refused")
	err := NewSearchBackendError("http://searxng:8080", root)

	assert.ErrorIs(t, err, root)
	assert.Equal(t, CodeSearchBackend, err.Code)
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHasCode(t *testing.T) {
	inner := NewExtractionError("https://example.com", errors.New("404"))
	wrapped := fmt.Errorf("collect: %w", inner)

	assert.True(t, HasCode(wrapped, CodeExtractionFailure))
	assert.False(t, HasCode(wrapped, CodeChatEndpoint))
	assert.False(t, HasCode(errors.New("plain"), CodeExtractionFailure))
	assert.False(t, HasCode(nil, CodeExtractionFailure))

	nested := NewChatEndpointError("http://llm", inner)
	assert.True(t, HasCode(nested, CodeExtractionFailure))
}

func TestExtractionTimeoutError(t *testing.T) {
	err := NewExtractionTimeoutError("https://slow.example", 5*time.Second)

	assert.Equal(t, CodeExtractionTimeout, err.Code)
	assert.Equal(t, CategoryTimeout, err.Category)
	assert.Equal(t, "https://slow.example", err.Context.Resource)
	assert.Equal(t, "[EXTRACTION_TIMEOUT] extraction did not finish within 5s", err.Error())
}
