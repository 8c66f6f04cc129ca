package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/budget"
	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/pkg/models"
)

type fakeTransport struct {
	calls int
	err   error
}

func (t *fakeTransport) Generate(_ context.Context, spec RequestSpec) (models.GeneratedContent, error) {
	t.calls++
	if t.err != nil {
		return models.GeneratedContent{}, t.err
	}
	return models.GeneratedContent{Text: "generated for " + spec.ItemID}, nil
}

type fakeFallbacks struct{}

func (fakeFallbacks) FallbackText(itemID string) string {
	return "canned for " + itemID
}

func newTestGate(capUnits int, tr *fakeTransport) *Gate {
	c := cache.New(1<<20, 24*time.Hour, time.Hour, nil, zap.NewNop())
	l := budget.NewLedger(capUnits, 24*time.Hour)
	return New(c, l, tr, fakeFallbacks{}, 1, 10, zap.NewNop())
}

func TestFingerprintNormalization(t *testing.T) {
	a := RequestSpec{ItemID: " SH-1 ", Modality: ModalityExample, Locale: "EN-gb",
		Params: map[string]string{"voice": "Nova", "style": "slow"}}
	b := RequestSpec{ItemID: "sh-1", Modality: ModalityExample, Locale: "en-gb",
		Params: map[string]string{"style": " SLOW ", "voice": "nova"}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"semantically identical specs must share a fingerprint")

	c := RequestSpec{ItemID: "sh-1", Modality: ModalityAudio, Locale: "en-gb"}
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSecondRequestServedFromCache(t *testing.T) {
	tr := &fakeTransport{}
	g := newTestGate(100, tr)
	spec := RequestSpec{ItemID: "sh-1", Modality: ModalityExample}

	first, err := g.Request(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, first.Fallback)

	second, err := g.Request(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)

	// Exactly one transport call and one charge for two identical requests
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 99, g.ledger.Remaining())
}

func TestBudgetDenialReturnsFallbackWithoutTransportCall(t *testing.T) {
	tr := &fakeTransport{}
	g := newTestGate(100, tr)

	// Drain the budget with audio requests (10 units each)
	for i := 0; i < 10; i++ {
		spec := RequestSpec{ItemID: "item-" + string(rune('a'+i)), Modality: ModalityAudio}
		res, err := g.Request(context.Background(), spec)
		require.NoError(t, err)
		assert.False(t, res.Fallback)
	}
	assert.Equal(t, 10, tr.calls)

	res, err := g.Request(context.Background(), RequestSpec{ItemID: "item-z", Modality: ModalityAudio})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, ReasonBudgetExceeded, res.Reason)
	assert.Equal(t, "canned for item-z", res.Content.Text)
	assert.Equal(t, 10, tr.calls, "denied request must not reach the transport")
}

func TestTransportFailureFallsBackAndKeepsCharge(t *testing.T) {
	tr := &fakeTransport{err: errors.New("upstream timeout")}
	g := newTestGate(100, tr)

	res, err := g.Request(context.Background(), RequestSpec{ItemID: "sh-1", Modality: ModalityExample})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, ReasonTransportFailure, res.Reason)
	assert.Equal(t, "canned for sh-1", res.Content.Text)

	// The charge happened before the call and is not refunded
	assert.Equal(t, 99, g.ledger.Remaining())

	// A failed response is not cached: the next request tries again
	tr.err = nil
	res, err = g.Request(context.Background(), RequestSpec{ItemID: "sh-1", Modality: ModalityExample})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, 2, tr.calls)
}

func TestCacheHitAfterBudgetExhaustion(t *testing.T) {
	tr := &fakeTransport{}
	g := newTestGate(1, tr)
	spec := RequestSpec{ItemID: "sh-1", Modality: ModalityExample}

	res, err := g.Request(context.Background(), spec)
	require.NoError(t, err)
	require.False(t, res.Fallback)
	require.Equal(t, 0, g.ledger.Remaining())

	// Cached content stays free even with the budget fully spent
	res, err = g.Request(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, 1, tr.calls)
}

func TestInvalidSpecRejected(t *testing.T) {
	tr := &fakeTransport{}
	g := newTestGate(100, tr)

	_, err := g.Request(context.Background(), RequestSpec{ItemID: "  ", Modality: ModalityExample})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = g.Request(context.Background(), RequestSpec{ItemID: "sh-1", Modality: "video"})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	assert.Equal(t, 0, tr.calls)
	assert.Equal(t, 100, g.ledger.Remaining())
}
