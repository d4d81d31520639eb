package scene

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Aggregator fans out one trace call per character and merges the results
// into a single list per channel.
type Aggregator struct {
	provider TraceProvider
	names    NameResolver
	workers  int
	logger   *slog.Logger
}

// NewAggregator creates an aggregator. names may be nil; workers <= 0 runs
// the traces one at a time.
func NewAggregator(provider TraceProvider, names NameResolver, workers int, logger *slog.Logger) *Aggregator {
	if workers <= 0 {
		workers = 1
	}
	return &Aggregator{
		provider: provider,
		names:    names,
		workers:  workers,
		logger:   logger,
	}
}

// Aggregate traces every character and returns the distinct scenes sorted by
// start index. The first trace (in character order) reporting a given start
// message wins; later reports of the same start are dropped.
func (a *Aggregator) Aggregate(ctx context.Context, ch *Channel, characters []CharacterID) ([]Scene, error) {
	traces := make([][]Scene, len(characters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, c := range characters {
		g.Go(func() error {
			scenes, _, err := a.provider.Trace(gctx, ch, []CharacterID{c}, 0, true)
			if err != nil {
				return fmt.Errorf("character %d: %w: %w", c, ErrTraceProvider, err)
			}
			for _, s := range scenes {
				if s.Start.Index > s.End.Index {
					return fmt.Errorf("character %d: %w: start %d after end %d",
						c, ErrInvalidInterval, s.Start.Index, s.End.Index)
				}
			}
			traces[i] = scenes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var total []Scene

	for i, c := range characters {
		added := 0
		for _, s := range traces[i] {
			if _, ok := seen[s.Start.ID]; ok {
				a.logger.Debug("duplicate scene start dropped",
					"channel", ch.Name,
					"start", s.Start.ID,
					"character", a.name(c),
				)
				continue
			}
			seen[s.Start.ID] = struct{}{}

			s = s.clone()
			if len(s.Characters) == 0 {
				s.Characters = []CharacterID{c}
			}
			s.Channel = ch.Name
			s.Status = StatusOK
			total = append(total, s)
			added++
		}

		a.logger.Debug("character traced",
			"channel", ch.Name,
			"character", a.name(c),
			"scenes", len(traces[i]),
			"added", added,
			"total", len(total),
		)
	}

	slices.SortStableFunc(total, func(x, y Scene) int {
		return cmp.Compare(x.Start.Index, y.Start.Index)
	})

	return total, nil
}

func (a *Aggregator) name(id CharacterID) string {
	if a.names != nil {
		if n, ok := a.names.Name(id); ok {
			return n
		}
	}
	return fmt.Sprintf("#%d", id)
}
