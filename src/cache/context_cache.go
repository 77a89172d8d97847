package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

// TierSources lists the collaborators each tier is rebuilt from. Several
// sources in one tier are joined in order.
type TierSources struct {
	Static  []models.ContextSource
	Slow    []models.ContextSource
	Dynamic []models.ContextSource
}

type tier struct {
	name    models.CacheTier
	title   string
	ttl     time.Duration // <= 0 means always rebuilt
	sources []models.ContextSource
}

// isStale reports whether a tier snapshot must be rebuilt at now.
func (t tier) isStale(snapshot *models.TierSnapshot, now time.Time) bool {
	if snapshot == nil || t.ttl <= 0 {
		return true
	}
	return now.Sub(snapshot.BuiltAt) > t.ttl
}

// ContextCache assembles the per-user prompt context from three tiers with
// independent refresh policies.
type ContextCache struct {
	tiers []tier
	store models.TierStore
	locks *utils.KeyedMutex
	now   func() time.Time
}

func NewContextCache(cfg *config.ContextConfig, store models.TierStore, sources TierSources) *ContextCache {
	return &ContextCache{
		tiers: []tier{
			{name: models.TierStatic, title: "About the user", ttl: cfg.StaticTTL, sources: sources.Static},
			{name: models.TierSlow, title: "Recent patterns", ttl: cfg.SlowTTL, sources: sources.Slow},
			{name: models.TierDynamic, title: "Right now", ttl: 0, sources: sources.Dynamic},
		},
		store: store,
		locks: utils.NewKeyedMutex(),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (c *ContextCache) SetClock(now func() time.Time) {
	c.now = now
}

// Assemble returns static, slow and dynamic payloads in that order. Failing
// collaborators never fail the assembly: the last stored payload is reused
// and the context is flagged degraded.
func (c *ContextCache) Assemble(ctx context.Context, userID string) (*models.AssembledContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	assembled := &models.AssembledContext{}
	var text strings.Builder

	for _, t := range c.tiers {
		payload, degraded := c.resolve(ctx, userID, t)
		if degraded {
			assembled.Degraded = true
			assembled.DegradedTiers = append(assembled.DegradedTiers, t.name)
		}

		text.WriteString(formatSegment(t.title, payload))

		if t.name == models.TierSlow {
			assembled.CacheableLength = text.Len()
		}
	}

	assembled.Text = text.String()
	return assembled, nil
}

// Invalidate drops a tier snapshot so the next Assemble rebuilds it.
func (c *ContextCache) Invalidate(ctx context.Context, userID string, name models.CacheTier) error {
	unlock := c.locks.Lock(userID + "|" + string(name))
	defer unlock()

	return c.store.Delete(ctx, userID, name)
}

func (c *ContextCache) resolve(ctx context.Context, userID string, t tier) (string, bool) {
	unlock := c.locks.Lock(userID + "|" + string(t.name))
	defer unlock()

	log := logger.ForUser(userID).WithField("tier", t.name)

	snapshot, err := c.store.Get(ctx, userID, t.name)
	if err != nil {
		log.WithError(err).Warn("Failed to read tier snapshot")
		snapshot = nil
	}

	now := c.now()
	if !t.isStale(snapshot, now) {
		return snapshot.Payload, false
	}

	payload, err := t.build(ctx, userID)
	if err != nil {
		if snapshot != nil {
			log.WithError(err).WithField("built_at", snapshot.BuiltAt).
				Warn("Context fetch failed, reusing stale tier payload")
			return snapshot.Payload, true
		}
		log.WithError(err).Warn("Context fetch failed with no snapshot to fall back on")
		return "", true
	}

	fresh := &models.TierSnapshot{Payload: payload, BuiltAt: now}
	if err := c.store.Set(ctx, userID, t.name, fresh); err != nil {
		log.WithError(err).Warn("Failed to store tier snapshot")
	}

	log.WithFields(logrus.Fields{"bytes": len(payload)}).Debug("Rebuilt context tier")
	return payload, false
}

func (t tier) build(ctx context.Context, userID string) (string, error) {
	parts := make([]string, 0, len(t.sources))
	for _, source := range t.sources {
		part, err := source.Fetch(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("%s tier: %w", t.name, err)
		}
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func formatSegment(title, payload string) string {
	if payload == "" {
		return ""
	}
	return "## " + title + "\n" + payload + "\n\n"
}
