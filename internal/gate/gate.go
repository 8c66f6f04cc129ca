// Package gate is the façade every AI-content request goes through. It
// composes the response cache, the budget ledger, and the external
// transport so that repeated or predictable requests never re-incur API
// cost, and a denied or failed request degrades to static curriculum
// content instead of an error.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/budget"
	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/pkg/models"
)

// Modality is the kind of generated content requested. Each modality has
// its own budget cost and cache TTL class.
type Modality string

const (
	// ModalityExample requests a generated example sentence for an item
	ModalityExample Modality = "example"
	// ModalityAudio requests synthesized pronunciation audio for an item
	ModalityAudio Modality = "audio"
)

// ErrInvalidSpec marks a malformed request. It is a caller bug, rejected
// synchronously and never retried.
var ErrInvalidSpec = errors.New("invalid request spec")

// RequestSpec describes one AI-content request.
type RequestSpec struct {
	ItemID   string
	Modality Modality
	Locale   string
	Params   map[string]string // Optional voice/style parameters
}

// Fingerprint derives the deterministic cache key for the spec. Parameters
// are case-folded, trimmed, and the optional keys sorted, so semantically
// identical requests always collide to the same key.
func (s RequestSpec) Fingerprint() string {
	var b strings.Builder
	b.WriteString(norm(s.ItemID))
	b.WriteByte('|')
	b.WriteString(norm(string(s.Modality)))
	b.WriteByte('|')
	b.WriteString(norm(s.Locale))

	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(norm(k))
		b.WriteByte('=')
		b.WriteString(norm(s.Params[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FallbackReason explains why a request degraded to static content.
type FallbackReason string

const (
	// ReasonBudgetExceeded means the ledger denied the charge
	ReasonBudgetExceeded FallbackReason = "budget_exceeded"
	// ReasonTransportFailure means the AI call itself failed
	ReasonTransportFailure FallbackReason = "transport_failure"
)

// Result is the outcome of a gate request. When Fallback is true the
// content is a zero-cost static substitute and Reason says why; the
// learner still always receives something usable.
type Result struct {
	Content  models.GeneratedContent
	Fallback bool
	Reason   FallbackReason
}

// Transport is the external AI backend. A single attempt per call;
// retries, if any, are the transport's own concern.
type Transport interface {
	Generate(ctx context.Context, spec RequestSpec) (models.GeneratedContent, error)
}

// FallbackProvider supplies the canned substitute for an item. Plain text
// is an acceptable fallback for every modality, audio included.
type FallbackProvider interface {
	FallbackText(itemID string) string
}

// Gate mediates all AI-content requests.
type Gate struct {
	cache     *cache.Cache
	ledger    *budget.Ledger
	transport Transport
	fallbacks FallbackProvider
	costs     map[Modality]int
	logger    *zap.Logger
}

// New creates a gate. exampleCost and audioCost are the per-call budget
// charges in ledger units.
func New(c *cache.Cache, l *budget.Ledger, t Transport, f FallbackProvider,
	exampleCost, audioCost int, logger *zap.Logger) *Gate {
	return &Gate{
		cache:     c,
		ledger:    l,
		transport: t,
		fallbacks: f,
		costs: map[Modality]int{
			ModalityExample: exampleCost,
			ModalityAudio:   audioCost,
		},
		logger: logger,
	}
}

// Request resolves a content request: cache hit, charged transport call,
// or fallback. The charge always strictly precedes the transport call, so
// a failed call still consumes budget; that bounds worst-case spend under
// retry storms at the transport layer.
func (g *Gate) Request(ctx context.Context, spec RequestSpec) (Result, error) {
	if err := validate(spec); err != nil {
		return Result{}, err
	}

	fp := spec.Fingerprint()
	if content, ok := g.cache.Lookup(fp); ok {
		return Result{Content: content}, nil
	}

	cost := g.costs[spec.Modality]
	if g.ledger.Charge(cost) == budget.DeniedOverBudget {
		g.logger.Info("AI budget exhausted, serving fallback",
			zap.String("item", spec.ItemID), zap.String("modality", string(spec.Modality)))
		return g.fallback(spec, ReasonBudgetExceeded), nil
	}

	content, err := g.transport.Generate(ctx, spec)
	if err != nil {
		g.logger.Warn("AI transport call failed, serving fallback",
			zap.String("item", spec.ItemID), zap.String("modality", string(spec.Modality)),
			zap.Error(err))
		return g.fallback(spec, ReasonTransportFailure), nil
	}

	g.cache.Store(fp, content, ttlClass(spec))
	return Result{Content: content}, nil
}

func validate(spec RequestSpec) error {
	if strings.TrimSpace(spec.ItemID) == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidSpec)
	}
	switch spec.Modality {
	case ModalityExample, ModalityAudio:
		return nil
	}
	return fmt.Errorf("%w: unknown modality %q", ErrInvalidSpec, spec.Modality)
}

// ttlClass picks the cache expiry class: pronunciation audio of a fixed
// item never changes, and neither does an unparameterized example; a
// style-parameterized example is variable content.
func ttlClass(spec RequestSpec) cache.TTLClass {
	if spec.Modality == ModalityExample && len(spec.Params) > 0 {
		return cache.TTLVariable
	}
	return cache.TTLStatic
}

// fallback builds the degraded result from curriculum data.
func (g *Gate) fallback(spec RequestSpec, reason FallbackReason) Result {
	return Result{
		Content:  models.GeneratedContent{Text: g.fallbacks.FallbackText(spec.ItemID)},
		Fallback: true,
		Reason:   reason,
	}
}
