package vision

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/resilience"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ExtractText(ctx context.Context, pages []Page) (string, model.Usage, error) {
	s.calls++
	if s.err != nil {
		return "", model.Usage{InputTokens: 10}, s.err
	}
	return s.text, model.Usage{InputTokens: 100, OutputTokens: 50}, nil
}

func testPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond}
}

func testPages() []Page {
	return []Page{{MIMEType: "image/jpeg", Data: []byte("fake-jpeg-bytes")}}
}

// validText is 120 characters of plausible recipe text.
var validText = strings.Repeat("2 cups flour, sift. ", 6)

func TestExtract_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", text: validText}
	fallback := &stubProvider{name: "gemini", text: validText}

	ex := NewExtractor(primary, fallback, testPolicy())
	got, err := ex.Extract(context.Background(), testPages())
	require.NoError(t, err)
	assert.Equal(t, "claude", got.ServedBy)
	assert.False(t, got.Fallback)
	assert.Equal(t, 0, fallback.calls)
	assert.Equal(t, int64(100), got.Usage.InputTokens)
}

func TestExtract_FallbackOnPrimaryError(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", err: eris.New("quota exceeded")}
	fallback := &stubProvider{name: "gemini", text: validText}

	ex := NewExtractor(primary, fallback, testPolicy())
	got, err := ex.Extract(context.Background(), testPages())
	require.NoError(t, err)
	assert.Equal(t, "gemini", got.ServedBy)
	assert.True(t, got.Fallback)
	// Usage from the failed primary attempt is still accounted for.
	assert.Equal(t, int64(110), got.Usage.InputTokens)
}

func TestExtract_FallbackOnShortOutput(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", text: "blurry"}
	fallback := &stubProvider{name: "gemini", text: validText}

	ex := NewExtractor(primary, fallback, testPolicy())
	got, err := ex.Extract(context.Background(), testPages())
	require.NoError(t, err)
	assert.Equal(t, "gemini", got.ServedBy)
	assert.True(t, got.Fallback)
}

func TestExtract_BothFail(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", err: eris.New("down")}
	fallback := &stubProvider{name: "gemini", text: "too short"}

	ex := NewExtractor(primary, fallback, testPolicy())
	_, err := ex.Extract(context.Background(), testPages())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyOutput))
}

func TestExtract_NoFallbackConfigured(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", err: eris.New("down")}
	ex := NewExtractor(primary, nil, testPolicy())
	_, err := ex.Extract(context.Background(), testPages())
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
}

func TestExtract_NoPages(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(&stubProvider{name: "claude"}, nil, testPolicy())
	_, err := ex.Extract(context.Background(), nil)
	assert.Error(t, err)
}

func TestExtract_RetriesTransientThenFallsBack(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "claude", err: resilience.NewTransientError(eris.New("overloaded"), 529)}
	fallback := &stubProvider{name: "gemini", text: validText}

	policy := resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	ex := NewExtractor(primary, fallback, policy)
	got, err := ex.Extract(context.Background(), testPages())
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, "gemini", got.ServedBy)
}
