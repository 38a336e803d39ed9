package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", fmt.Errorf("boom"), "internal_error"},
		{"config", ConfigError("missing token"), "configuration_error"},
		{"not found", NotFoundErrorf("issue %s", "1"), "not_found"},
		{"auth", AuthErrorf("denied"), "auth_error"},
		{"transient", TransientError(nil, "503"), "transient_error"},
		{"unexpected", UnexpectedResponseError(nil, "bad body"), "unexpected_response"},
		{"rate limit", ProviderError(nil, ProviderRateLimit, "429"), "provider_rate_limit"},
		{"timeout", ProviderError(context.DeadlineExceeded, ProviderTimeout, "slow"), "provider_timeout"},
		{"provider auth", ProviderError(nil, ProviderAuth, "bad key"), "provider_auth"},
		{"provider other", ProviderError(nil, ProviderOther, "500"), "provider_error"},
		{"parse", ParseErrorf("no json"), "parse_error"},
		{"wrapped", fmt.Errorf("outer: %w", NotFoundErrorf("inner")), "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestRetryClassification(t *testing.T) {
	assert.True(t, IsTransient(TransientError(nil, "x")))
	assert.False(t, IsTransient(NotFoundErrorf("x")))

	assert.True(t, IsRetryableProvider(ProviderError(nil, ProviderRateLimit, "x")))
	assert.True(t, IsRetryableProvider(ProviderError(nil, ProviderTimeout, "x")))
	assert.False(t, IsRetryableProvider(ProviderError(nil, ProviderAuth, "x")))
	assert.False(t, IsRetryableProvider(TransientError(nil, "x")))
}

func TestErrorUnwrapAndIs(t *testing.T) {
	err := ProviderError(context.DeadlineExceeded, ProviderTimeout, "completion timed out")

	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.True(t, stderrors.Is(err, &Error{Kind: KindProvider, ProviderKind: ProviderTimeout}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindProvider, ProviderKind: ProviderRateLimit}))

	e, ok := As(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, KindProvider, e.Kind)
}

func TestDetailedString(t *testing.T) {
	err := Wrap(fmt.Errorf("connection refused"), KindStorage, "open store").
		WithContext("driver", "sqlite")

	s := err.DetailedString()
	assert.Contains(t, s, "[storage_error] open store")
	assert.Contains(t, s, "Caused by: connection refused")
	assert.Contains(t, s, "driver: sqlite")
	assert.Nil(t, Wrap(nil, KindStorage, "nothing"))
}
