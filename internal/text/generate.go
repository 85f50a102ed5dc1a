package text

import (
	"context"
	"fmt"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// completeFunc sends one system and user prompt pair and returns the raw reply.
type completeFunc func(ctx context.Context, kind, system, user string) (string, error)

func generateSegment(ctx context.Context, p *Prompter, complete completeFunc, st engine.Story, from engine.Stage) (engine.Segment, error) {
	if _, err := engine.NextStage(from); err != nil {
		return engine.Segment{}, err
	}
	system, user := p.Segment(st, from)
	raw, err := complete(ctx, "segment", system, user)
	if err != nil {
		return engine.Segment{}, err
	}
	return DecodeSegment(raw, segmentExpectation(from))
}

func continueGeneration(ctx context.Context, p *Prompter, complete completeFunc, st engine.Story, reason engine.RepairReason) (engine.Segment, error) {
	if !reason.Validate() {
		return engine.Segment{}, fmt.Errorf("unknown repair reason %q", reason)
	}
	system, user := p.Continuation(st, reason)
	raw, err := complete(ctx, string(reason), system, user)
	if err != nil {
		return engine.Segment{}, err
	}
	return DecodeSegment(raw, continuationExpectation(reason))
}
