package text

import (
	"context"
	"errors"

	"github.com/DaanHessen/storyloom/internal/engine"
	"go.uber.org/zap"
)

// WithFallback returns a backend that prefers primary and uses fallback when
// primary fails outright. Malformed replies are returned as they are.
func WithFallback(primary, fallback Backend, log *zap.Logger) Backend {
	return &fallbackBackend{p: primary, f: fallback, log: log}
}

type fallbackBackend struct {
	p, f Backend
	log  *zap.Logger
}

func (b *fallbackBackend) Name() string          { return b.p.Name() + "+" + b.f.Name() }
func (b *fallbackBackend) RequiresLicense() bool { return b.p.RequiresLicense() }

func (b *fallbackBackend) Configure(license, model string) {
	b.p.Configure(license, model)
	b.f.Configure(license, "")
}

func (b *fallbackBackend) GenerateSegment(ctx context.Context, st engine.Story, from engine.Stage) (engine.Segment, error) {
	seg, err := b.p.GenerateSegment(ctx, st, from)
	if !b.shouldFallBack(err) {
		return seg, err
	}
	b.log.Warn("primary backend failed, using fallback", zap.String("backend", b.f.Name()), zap.Error(err))
	return b.f.GenerateSegment(ctx, st, from)
}

func (b *fallbackBackend) ContinueGeneration(ctx context.Context, st engine.Story, reason engine.RepairReason) (engine.Segment, error) {
	seg, err := b.p.ContinueGeneration(ctx, st, reason)
	if !b.shouldFallBack(err) {
		return seg, err
	}
	b.log.Warn("primary backend failed, using fallback", zap.String("backend", b.f.Name()), zap.Error(err))
	return b.f.ContinueGeneration(ctx, st, reason)
}

func (b *fallbackBackend) shouldFallBack(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var malformed *engine.MalformedResponseError
	return !errors.As(err, &malformed)
}
