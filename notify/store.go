package notify

import (
	"context"
	"time"
)

type Store interface {
	IngestBatch(ctx context.Context, events []*Notification) error
	Query(ctx context.Context, recipient string, opts QueryOpts) ([]*Notification, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type QueryOpts struct {
	Kind   Kind
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
