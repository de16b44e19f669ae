package catalog

import (
	"context"
	"time"
)

// BatchSource pulls pending work from the catalog store. An empty batch is
// the pipeline's termination signal, not an error.
type BatchSource interface {
	PendingBatch(ctx context.Context, limit int) ([]WorkItem, error)
}

// ResultWriter persists one enrichment result. The update is an upsert by
// row id, so re-applying the same result is safe.
type ResultWriter interface {
	WriteResult(ctx context.Context, res FetchResult) error
}

// Fetcher retrieves one product page and extracts the monograph reference.
type Fetcher interface {
	Fetch(ctx context.Context, drugCode string) (PageInfo, error)
}

// ProductSink accepts bulk-imported product rows.
type ProductSink interface {
	InsertProducts(ctx context.Context, products []Product) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for the given duration unless the context finishes first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}
