/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"context"

	"github.com/Seednode/quizmatch/games/memory"
)

// Fallback tries each source in order and returns the first success. When
// every source fails the first error is returned.
type Fallback struct {
	sources []memory.ContentSource
	logf    Logf
}

func NewFallback(logf Logf, sources ...memory.ContentSource) *Fallback {
	return &Fallback{sources: sources, logf: logf}
}

func (f *Fallback) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	var first error

	for i, s := range f.sources {
		pairs, err := s.Generate(ctx, topic, count)
		if err == nil {
			return pairs, nil
		}

		f.logf.printf("source %d failed: %v", i, err)
		if first == nil {
			first = err
		}
		if ctx.Err() != nil {
			break
		}
	}

	if first == nil {
		first = memory.NewContentError("no content source configured", nil)
	}

	return nil, first
}
