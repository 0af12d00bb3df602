package rootfile

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of resolving one key. Exactly one of Object and Err
// is set.
type Result struct {
	Key    *Key
	Object *Object
	Err    error
}

// ReadAll resolves every key with at most parallelism reads in flight.
// A failing key does not stop its siblings; results keep the input order.
// parallelism <= 0 means no limit.
func ReadAll(ctx context.Context, r Reader, keys []*Key, parallelism int) []Result {
	results := make([]Result, len(keys))
	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, k := range keys {
		i, k := i, k
		results[i].Key = k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			obj, err := k.ReadObject(ctx, r, nil)
			if err != nil {
				log.Warn().Err(err).Str("key", k.String()).Msg("object read failed")
				results[i].Err = err
				return nil
			}
			results[i].Object = obj
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, res := range results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}
