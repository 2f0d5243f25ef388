package notifier

import (
	"context"
	"time"

	"crest/internal/digest"
)

// Sink is what tasks hand their digest to.
type Sink interface {
	Send(ctx context.Context, destination string, p digest.Payload) error
}

// Transport delivers to one family of destinations.
type Transport interface {
	Name() string
	Accepts(destination string) bool
	Deliver(ctx context.Context, destination string, p digest.Payload) error
}

type Config struct {
	RatePerSec  float64       // 0 means 1
	Burst       int           // 0 means 3
	Timeout     time.Duration // per delivery; 0 means 30s
	HistorySize int           // 0 means 100
}

type HistoryItem struct {
	At          time.Time
	Transport   string
	Destination string // redacted
	Body        string
	Entries     int
	Err         string
}
