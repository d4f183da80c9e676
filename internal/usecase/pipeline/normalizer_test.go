package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readflow/internal/infra/llm"
)

// scriptedCompleter replays a fixed sequence of results.
type scriptedCompleter struct {
	script []func() (string, error)
	calls  int
}

func (s *scriptedCompleter) Complete(_ context.Context, _, _ string, _ float64) (string, error) {
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	return s.script[idx]()
}

func respond(body string) func() (string, error) {
	return func() (string, error) { return body, nil }
}

func rateLimited(retryAfter time.Duration) func() (string, error) {
	return func() (string, error) { return "", &llm.RateLimitError{RetryAfter: retryAfter} }
}

// fakeSleep records requested waits without sleeping.
func fakeSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func goodResponse(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(NormalizedContent{
		FormattedContent:    strings.Repeat("## 📌 Section\n\nKey point explained in detail here. ", 8),
		Summary:             "The article explains connection pooling.\n\nIt covers sizing and timeouts.",
		NotificationContent: "New article on connection pooling.",
		TranslatedTitle:     "Understanding Connection Pools",
	})
	require.NoError(t, err)
	return string(body)
}

func sampleInput() string {
	return strings.Repeat("Connection pools keep latency predictable when traffic spikes. ", 10)
}

func TestNormalizer_Success(t *testing.T) {
	n := NewNormalizer(&scriptedCompleter{script: []func() (string, error){respond(goodResponse(t))}})

	got, aiOK := n.Normalize(context.Background(), sampleInput(), "Original Title", "en")

	assert.True(t, aiOK)
	assert.Equal(t, "Understanding Connection Pools", got.TranslatedTitle)
	assert.Equal(t, "New article on connection pooling.", got.NotificationContent)
	assert.Contains(t, got.FormattedContent, "📌")
}

func TestNormalizer_QualityGateReplacesShortBody(t *testing.T) {
	short, err := json.Marshal(NormalizedContent{
		FormattedContent: "Too short.",
		Summary:          "A fine summary that survives.",
		TranslatedTitle:  "Title Kept As Is",
	})
	require.NoError(t, err)

	n := NewNormalizer(&scriptedCompleter{script: []func() (string, error){respond(string(short))}})
	input := sampleInput()

	got, aiOK := n.Normalize(context.Background(), input, "Original Title", "en")

	assert.True(t, aiOK, "rejection applies to the formatted field only")
	assert.Equal(t, "A fine summary that survives.", got.Summary)
	assert.Contains(t, got.FormattedContent, "Connection pools",
		"distrusted AI body replaced with the cleaned input")
	assert.Equal(t, "A fine summary that survives.", got.NotificationContent,
		"empty notification content falls back to the summary")
}

func TestNormalizer_RateLimitRetryHonorsRetryAfter(t *testing.T) {
	completer := &scriptedCompleter{script: []func() (string, error){
		rateLimited(3 * time.Second),
		rateLimited(0),
		respond(goodResponse(t)),
	}}
	n := NewNormalizer(completer)
	var waits []time.Duration
	n.sleep = fakeSleep(&waits)

	got, aiOK := n.Normalize(context.Background(), sampleInput(), "Original Title", "en")

	assert.True(t, aiOK)
	assert.NotEmpty(t, got.Summary)
	assert.Equal(t, 3, completer.calls)
	require.Len(t, waits, 2)
	assert.Equal(t, 3*time.Second, waits[0], "server Retry-After hint wins over computed backoff")
	assert.Equal(t, time.Second, waits[1], "second wait uses the doubled computed backoff")
}

func TestNormalizer_MalformedResponseRetriedThenRepaired(t *testing.T) {
	fenced := "```json\n" + goodResponse(t) + "\n```"
	completer := &scriptedCompleter{script: []func() (string, error){
		respond("I'm sorry, I can't produce JSON for that."),
		respond(fenced),
	}}
	n := NewNormalizer(completer)
	var waits []time.Duration
	n.sleep = fakeSleep(&waits)

	got, aiOK := n.Normalize(context.Background(), sampleInput(), "Original Title", "en")

	assert.True(t, aiOK)
	assert.Equal(t, 2, completer.calls)
	assert.Equal(t, "Understanding Connection Pools", got.TranslatedTitle)
}

func TestNormalizer_ExhaustionFallsBack(t *testing.T) {
	completer := &scriptedCompleter{script: []func() (string, error){
		respond("no json"), respond("no json"), respond("no json"),
	}}
	n := NewNormalizer(completer)
	var waits []time.Duration
	n.sleep = fakeSleep(&waits)

	input := "First sentence of the piece. Second sentence follows. Third one too. Fourth is extra."
	got, aiOK := n.Normalize(context.Background(), input, "Fallback Title", "en")

	assert.False(t, aiOK)
	want := &NormalizedContent{
		FormattedContent:    input,
		Summary:             "First sentence of the piece. Second sentence follows. Third one too.",
		NotificationContent: "Fallback Title",
		TranslatedTitle:     "Fallback Title",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fallback content mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizer_NilCompleterFallsBack(t *testing.T) {
	n := NewNormalizer(nil)

	got, aiOK := n.Normalize(context.Background(), sampleInput(), "Some Title", "en")

	assert.False(t, aiOK)
	assert.Equal(t, "Some Title", got.TranslatedTitle)
	assert.NotEmpty(t, got.Summary)
}

func TestNormalizer_ContextCancelledDuringBackoff(t *testing.T) {
	completer := &scriptedCompleter{script: []func() (string, error){rateLimited(time.Hour)}}
	n := NewNormalizer(completer)
	n.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	got, aiOK := n.Normalize(context.Background(), sampleInput(), "Some Title", "en")

	assert.False(t, aiOK, "cancellation aborts the AI path without retrying")
	assert.Equal(t, 1, completer.calls)
	assert.NotNil(t, got, "fallback still produced")
}
