package sources

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kerbaras/comicdl/pkg/data"
)

const DefaultBatchSize = 5

type leafFunc func(ctx context.Context, g *data.Group) (*data.ChapterListing, error)

// resolveGroups fills the pending groups of cat from their chapter pages,
// batchSize at a time. A failing leaf leaves its group not done; only a
// cancelled ctx aborts.
func resolveGroups(ctx context.Context, cat *data.Category, batchSize int, leaf leafFunc, logger *zap.SugaredLogger) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var pending []int
	for i := range cat.Groups {
		if !cat.Groups[i].Done {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]
		results := make([]*data.ChapterListing, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for j, idx := range batch {
			group := cat.Groups[idx]
			g.Go(func() error {
				l, err := leaf(gctx, &group)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logger.Warnw("chapter resolution failed", "category", cat.Label, "group", group.Name, "error", err)
					return nil
				}
				results[j] = l
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for j, idx := range batch {
			grp := &cat.Groups[idx]
			l := results[j]
			if l == nil {
				grp.Items, grp.Count, grp.Done = nil, 0, false
				continue
			}
			grp.Items = make([]data.Item, len(l.Images))
			for k, src := range l.Images {
				grp.Items[k] = data.Item{Src: src}
			}
			grp.Count = l.Advertised
			grp.Done = l.Done
		}
	}
	return nil
}
