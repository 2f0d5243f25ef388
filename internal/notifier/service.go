package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"crest/internal/digest"
	"crest/internal/eventbus"
	logx "crest/pkg/logx"
)

var (
	ErrNoTransport = errors.New("no transport accepts destination")
	ErrEmptyDest   = errors.New("empty destination")
)

// Service implements Sink over a set of transports. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log        logx.Logger
	bus        eventbus.Bus
	cfg        Config
	limiter    *rate.Limiter
	transports []Transport

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, transports ...Transport) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{log: log.With(logx.String("comp", "notifier")), bus: bus, transports: transports}
	s.applyLocked(cfg)
	return s
}

// Register adds a transport after construction. Earlier transports win.
func (s *Service) Register(t Transport) {
	s.mu.Lock()
	s.transports = append(s.transports, t)
	s.mu.Unlock()
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Route returns the transport that would deliver to dest.
func (s *Service) Route(dest string) (Transport, error) {
	if dest == "" {
		return nil, ErrEmptyDest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transports {
		if t.Accepts(dest) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, Redact(dest))
}

// Send waits for the shared rate limiter, then delivers p with the configured timeout.
func (s *Service) Send(ctx context.Context, dest string, p digest.Payload) error {
	t, err := s.Route(dest)
	if err != nil {
		return err
	}

	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.Timeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("notify %s: %w", t.Name(), err)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	start := time.Now()
	err = t.Deliver(callCtx, dest, p)
	cancel()

	item := HistoryItem{At: start, Transport: t.Name(), Destination: Redact(dest), Body: p.Body, Entries: len(p.Entries)}
	data := eventbus.DigestData{Sink: t.Name(), Entries: len(p.Entries)}
	if err != nil {
		item.Err = err.Error()
		data.Err = err.Error()
		s.appendHistory(item)
		s.bus.Publish(eventbus.Event{Type: eventbus.DigestFailed, Data: data})
		s.log.Warn("digest delivery failed",
			logx.String("transport", t.Name()),
			logx.String("dest", item.Destination),
			logx.Err(err),
		)
		return fmt.Errorf("notify %s: %w", t.Name(), err)
	}
	s.appendHistory(item)
	s.bus.Publish(eventbus.Event{Type: eventbus.DigestSent, Data: data})
	s.log.Info("digest sent",
		logx.String("transport", t.Name()),
		logx.String("dest", item.Destination),
		logx.String("body", p.Body),
		logx.Int("entries", len(p.Entries)),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

// Redact hides the secret part of a destination: URLs keep scheme and host only.
func Redact(dest string) string {
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return dest
	}
	return u.Scheme + "://" + u.Host + "/…"
}
