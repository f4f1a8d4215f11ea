package sources

import (
	"context"

	"github.com/kerbaras/comicdl/pkg/data"
)

// Resolver turns a source URL into a listing.
type Resolver interface {
	// Name is the second-level domain label the resolver is routed by.
	Name() string
	Domain() string
	// Resolve returns a *data.ChapterListing for data.KindCurrent and a
	// *data.ComicListing for every other kind.
	Resolve(ctx context.Context, url string, kind data.Kind) (data.Listing, error)
}
