package render

import (
	"context"

	"github.com/zsiec/pgsd/pgs"
	"golang.org/x/sync/errgroup"
)

// Result pairs a display set with its rendered frame or the error that
// prevented it.
type Result struct {
	Set   *pgs.DisplaySet
	Frame *Frame
	Err   error
}

// RenderAll renders sets on up to limit goroutines (unlimited when limit <=
// 0). Results are in input order. A failed display set never stops the
// others; only ctx does, in which case the unrendered results carry
// ctx.Err() and so does the returned error.
func RenderAll(ctx context.Context, sets []*pgs.DisplaySet, limit int) ([]Result, error) {
	return Options{}.RenderAll(ctx, sets, limit)
}

// RenderAll is the package-level RenderAll with o applied to every set.
func (o Options) RenderAll(ctx context.Context, sets []*pgs.DisplaySet, limit int) ([]Result, error) {
	results := make([]Result, len(sets))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ds := range sets {
		results[i].Set = ds
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Frame, results[i].Err = o.Render(ds)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}
