package api

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// prefetchParallelism bounds concurrent asset downloads. Assets are small
// (seconds of speech) so a handful of streams saturates most links.
const prefetchParallelism = 4

// PrefetchAssets downloads the attached audio of every line that has one and
// hands each payload to store. Lines without audio are skipped. Individual
// download failures are logged and skipped — a cold cache is not an error —
// but context cancellation aborts the whole batch.
func (c *Client) PrefetchAssets(ctx context.Context, lines []scenario.VoiceLine, store func(scenario.LineID, []byte)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchParallelism)

	for _, line := range lines {
		if !line.HasAudio() {
			continue
		}
		g.Go(func() error {
			payload, err := c.FetchAsset(ctx, line.PreferredAudio.SignedURL)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return err
				}
				log.Debug("asset prefetch skipped", "line", line.ID, "error", err)
				return nil
			}
			store(line.ID, payload)
			return nil
		})
	}
	return g.Wait()
}
