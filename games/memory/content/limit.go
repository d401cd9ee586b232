/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"context"
	"time"

	"github.com/Seednode/quizmatch/games/memory"
	"golang.org/x/time/rate"
)

// Limited throttles calls to an expensive source. Callers wait for a
// token until their context ends.
type Limited struct {
	inner   memory.ContentSource
	limiter *rate.Limiter
}

func NewLimited(inner memory.ContentSource, every time.Duration, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}

	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

func (l *Limited) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, memory.NewContentError("too many games are starting at once; try again shortly", err)
	}

	return l.inner.Generate(ctx, topic, count)
}
