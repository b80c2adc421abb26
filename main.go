// Command newsagg aggregates news from markup and feed sources.
//
// Sources are fetched concurrently by a bounded worker pool; each source is
// retried on transient failures, its entries validated and capped, and the
// harvests merged in roster order with first-seen-wins de-duplication. The
// resulting document is written to the local filesystem, GCS, or memory, with
// optional Postgres persistence and a Pub/Sub completion notice.
//
// Configure with a file passed via --config and NEWSAGG_* environment
// variables, for example NEWSAGG_FETCH_MAX_WORKERS=5.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/realtime-news-aggregator/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
