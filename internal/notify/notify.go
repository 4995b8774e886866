// Package notify publishes completed-snapshot events.
package notify

import (
	"context"
	"time"
)

// Event announces that all outputs of one snapshot are on disk.
type Event struct {
	Project   string    `json:"project"`
	Collector string    `json:"collector"`
	Timestamp time.Time `json:"timestamp"`
	SourceURL string    `json:"source_url"`
	Outputs   []string  `json:"outputs"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}
