package ingest

import (
	"context"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// Source queries one external data source and returns normalized records.
// A Source owns its executor and limiter and is only driven by one
// goroutine at a time.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Record, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context) ([]model.Record, error)
}

func (f SourceFunc) Name() string { return f.SourceName }

func (f SourceFunc) Fetch(ctx context.Context) ([]model.Record, error) { return f.Fn(ctx) }
