package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// stubProvider is a minimal Provider double whose Complete call can be
// scripted to fail a fixed number of times before succeeding, and whose
// ValidateCredentials result is configurable independently.
type stubProvider struct {
	name          string
	failTimes     int
	failErr       error
	credErr       error
	completeCalls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, model string, req CompleteRequest) (*CompleteResponse, error) {
	s.completeCalls++
	if s.completeCalls <= s.failTimes {
		return nil, s.failErr
	}
	return &CompleteResponse{Text: "ok", Model: model}, nil
}

func (s *stubProvider) Embed(ctx context.Context, model string, req EmbedRequest) (*EmbedResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Transcribe(ctx context.Context, model string, req TranscribeRequest) (*TranscribeResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) CountTokens(model, text string) int { return len(text) / 4 }
func (s *stubProvider) ContextWindow(model string) int     { return 8192 }
func (s *stubProvider) ValidateCredentials() error         { return s.credErr }

func newTestGateway(p Provider) *Gateway {
	g := &Gateway{
		providers: make(map[string]Provider),
		cache:     newResponseCache(64),
		retry:     coreerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0},
	}
	g.Register(p)
	return g
}

func TestComplete_RetriesTransientFailureThenSucceeds(t *testing.T) {
	p := &stubProvider{name: "stub", failTimes: 2, failErr: errors.New("rate limit exceeded")}
	g := newTestGateway(p)

	resp, err := g.Complete(context.Background(), CompleteRequest{Model: "stub/model"})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, p.completeCalls)
}

func TestComplete_DoesNotRetryFatalProviderError(t *testing.T) {
	p := &stubProvider{name: "stub", failTimes: 99, failErr: errors.New("invalid request body")}
	g := newTestGateway(p)

	_, err := g.Complete(context.Background(), CompleteRequest{Model: "stub/model"})

	require.Error(t, err)
	assert.Equal(t, 1, p.completeCalls)
	assert.False(t, coreerrors.IsRetryable(err))
}

func TestComplete_DoesNotRetryCredentialError(t *testing.T) {
	p := &stubProvider{name: "stub", failTimes: 99, failErr: coreerrors.CredentialError("STUB_API_KEY", nil)}
	g := newTestGateway(p)

	_, err := g.Complete(context.Background(), CompleteRequest{Model: "stub/model"})

	require.Error(t, err)
	assert.Equal(t, 1, p.completeCalls)
}

func TestValidateCredentials_DispatchesToModelsProvider(t *testing.T) {
	g := &Gateway{providers: make(map[string]Provider), cache: newResponseCache(64), retry: defaultGatewayRetry()}
	g.Register(&stubProvider{name: "good", credErr: nil})
	g.Register(&stubProvider{name: "bad", credErr: coreerrors.CredentialError("BAD_API_KEY", nil)})

	assert.NoError(t, g.ValidateCredentials("good/model"))

	err := g.ValidateCredentials("bad/model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD_API_KEY")
}

func TestValidateCredentials_UnknownProviderErrors(t *testing.T) {
	g := newTestGateway(&stubProvider{name: "stub"})

	err := g.ValidateCredentials("nonexistent/model")

	require.Error(t, err)
}
