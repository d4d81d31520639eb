package scene

import (
	"context"
	"fmt"
	"log/slog"
)

// Pipeline runs the per-channel stages: enumerate characters, aggregate
// their traces, validate conflicts and index the survivors.
type Pipeline struct {
	aggregator *Aggregator
	threshold  int
	logger     *slog.Logger
}

// NewPipeline creates a channel pipeline.
func NewPipeline(provider TraceProvider, names NameResolver, threshold, workers int, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		aggregator: NewAggregator(provider, names, workers, logger),
		threshold:  threshold,
		logger:     logger,
	}
}

// Run computes the final scene list and the review list of one channel. Any
// error aborts the whole channel; no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, ch *Channel) (*ChannelResult, error) {
	result := &ChannelResult{
		Channel:  ch.Name,
		Category: ch.Category,
		Position: ch.Position,
	}

	characters, err := Characters(ch, p.threshold)
	if err != nil {
		return nil, fmt.Errorf("enumerate characters: %w", err)
	}

	p.logger.Info("finding scenes in channel",
		"channel", ch.Name,
		"messages", len(ch.Messages),
		"characters", len(characters),
	)

	if len(characters) == 0 {
		return result, nil
	}

	raw, err := p.aggregator.Aggregate(ctx, ch, characters)
	if err != nil {
		return nil, fmt.Errorf("aggregate traces: %w", err)
	}

	scenes, review := Validate(raw)
	result.Scenes = Index(scenes, ch.Position)
	result.Review = review

	p.logger.Info("channel scenes computed",
		"channel", ch.Name,
		"raw", len(raw),
		"scenes", len(result.Scenes),
		"review", len(result.Review),
	)

	return result, nil
}
