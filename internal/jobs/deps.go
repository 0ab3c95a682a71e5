package jobs

import (
	"context"
	"time"

	"xgrowth/internal/ai"
	"xgrowth/internal/config"
	"xgrowth/internal/limits"
	"xgrowth/internal/locker"
	"xgrowth/internal/oauth"
	"xgrowth/internal/store"
	"xgrowth/internal/util"
	"xgrowth/internal/xapi"
)

// Deps carries everything a job run needs. Processors take it by value so
// tests can swap individual pieces without touching global state.
type Deps struct {
	Store     *store.Store
	Ledger    *limits.Ledger
	Tokens    *oauth.Manager
	Locker    locker.Locker
	Seen      locker.SeenSet
	AI        ai.Generator
	NewClient xapi.Factory
	Cfg       config.Config

	// Sleep overrides the inter-action jitter. Nil means real sleeps.
	Sleep func(ctx context.Context, min, max time.Duration) error
}

func (d Deps) sleep(ctx context.Context, min, max time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, min, max)
	}
	return util.JitterSleep(ctx, min, max)
}
