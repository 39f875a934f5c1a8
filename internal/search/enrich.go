package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// EnrichedContext is the search-backed context block injected ahead of
// an assistant turn: relevant long-lived facts plus relevant past
// messages, each capped independently.
type EnrichedContext struct {
	Facts    []SearchResult `json:"facts"`
	Messages []SearchResult `json:"messages"`
}

// Empty reports whether enrichment found nothing.
func (c *EnrichedContext) Empty() bool {
	return len(c.Facts) == 0 && len(c.Messages) == 0
}

// ContextBuilder assembles enriched context by running one hybrid search
// per collection against the orchestrator.
type ContextBuilder struct {
	orchestrator *Orchestrator
	factLimit    int
	messageLimit int
	logger       zerolog.Logger
}

// NewContextBuilder creates a ContextBuilder with per-collection caps.
func NewContextBuilder(o *Orchestrator, factLimit, messageLimit int, logger zerolog.Logger) *ContextBuilder {
	if factLimit <= 0 {
		factLimit = 5
	}
	if messageLimit <= 0 {
		messageLimit = 10
	}
	return &ContextBuilder{
		orchestrator: o,
		factLimit:    factLimit,
		messageLimit: messageLimit,
		logger:       logger.With().Str("component", "context_builder").Logger(),
	}
}

// Build returns the enriched context for query. Empty queries yield an
// empty context rather than an error so callers can fire it on every
// turn without guarding.
func (b *ContextBuilder) Build(ctx context.Context, query, ownerID string) *EnrichedContext {
	out := &EnrichedContext{}
	if strings.TrimSpace(query) == "" {
		return out
	}

	facts, err := b.orchestrator.Search(ctx, query, Options{
		OwnerID:    ownerID,
		Collection: CollectionFacts,
		Mode:       ModeHybrid,
		Limit:      b.factLimit,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("fact enrichment failed")
	} else {
		out.Facts = facts.Results
	}

	messages, err := b.orchestrator.Search(ctx, query, Options{
		OwnerID:    ownerID,
		Collection: CollectionMessages,
		Mode:       ModeHybrid,
		Limit:      b.messageLimit,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("message enrichment failed")
	} else {
		out.Messages = messages.Results
	}

	return out
}
