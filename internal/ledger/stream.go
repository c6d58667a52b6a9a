package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Fact kinds emitted by the ledger. The mirror folds these in so state
// settled by other participants (a revocation submitted elsewhere, a
// proposal resolved by another node's winning vote) becomes visible.
const (
	FactConsentRevoked   = "consent.revoked"
	FactProposalResolved = "proposal.resolved"
)

// CBOR fact parsing errors.
var (
	ErrInvalidFact     = errors.New("invalid fact frame")
	ErrMissingFactKind = errors.New("missing fact kind")
)

// Fact is one emitted ledger fact. Payload stays CBOR-encoded until the
// kind-specific decoder runs.
type Fact struct {
	Kind    string          `cbor:"kind"`
	Token   string          `cbor:"token"`
	TimeUS  int64           `cbor:"time_us"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
}

// ConsentRevokedFact is the payload of a FactConsentRevoked frame.
type ConsentRevokedFact struct {
	Index int64 `cbor:"index"`
}

// ProposalResolvedFact is the payload of a FactProposalResolved frame.
type ProposalResolvedFact struct {
	ProposalID string `cbor:"proposal_id"`
	Status     string `cbor:"status"`
}

// DecodeFact decodes a CBOR fact frame emitted by the ledger.
func DecodeFact(data []byte) (*Fact, error) {
	if len(data) == 0 {
		return nil, ErrInvalidFact
	}
	var fact Fact
	if err := cbor.Unmarshal(data, &fact); err != nil {
		return nil, errors.Join(ErrInvalidFact, err)
	}
	if fact.Kind == "" {
		return nil, ErrMissingFactKind
	}
	return &fact, nil
}

// DecodeConsentRevoked decodes the payload of a consent.revoked fact.
func DecodeConsentRevoked(fact *Fact) (*ConsentRevokedFact, error) {
	if fact.Kind != FactConsentRevoked {
		return nil, ErrInvalidFact
	}
	var payload ConsentRevokedFact
	if err := cbor.Unmarshal(fact.Payload, &payload); err != nil {
		return nil, errors.Join(ErrInvalidFact, err)
	}
	return &payload, nil
}

// DecodeProposalResolved decodes the payload of a proposal.resolved fact.
func DecodeProposalResolved(fact *Fact) (*ProposalResolvedFact, error) {
	if fact.Kind != FactProposalResolved {
		return nil, ErrInvalidFact
	}
	var payload ProposalResolvedFact
	if err := cbor.Unmarshal(fact.Payload, &payload); err != nil {
		return nil, errors.Join(ErrInvalidFact, err)
	}
	return &payload, nil
}

// FactHandler is a callback for each decoded fact. Returning an error makes
// the subscriber drop the connection and reconnect.
type FactHandler func(ctx context.Context, fact *Fact) error

// StreamConfig holds configuration for the fact stream subscriber.
type StreamConfig struct {
	URL          string
	BaseDelay    time.Duration // reconnect backoff base; default 1s
	MaxDelay     time.Duration // reconnect backoff cap; default 30s
	DialTimeout  time.Duration // websocket handshake timeout; default 10s
}

// Validate checks the stream configuration.
func (c *StreamConfig) Validate() error {
	if c.URL == "" {
		return errors.New("stream URL is required")
	}
	return nil
}

// Subscriber is a resilient websocket client for the ledger's emitted-fact
// stream. It reconnects with exponential backoff and jitter.
type Subscriber struct {
	config  StreamConfig
	handler FactHandler
	logger  *slog.Logger

	mu   sync.Mutex
	rng  *rand.Rand // protected by mu
	conn *websocket.Conn

	// reconnectCount tracks consecutive reconnection attempts (atomic)
	reconnectCount int64
}

// NewSubscriber creates a fact stream subscriber. The handler is called for
// each decoded fact frame.
func NewSubscriber(config StreamConfig, handler FactHandler, logger *slog.Logger) (*Subscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		config:  config,
		handler: handler,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run subscribes and blocks until the context is cancelled, reconnecting
// with backoff on connection failures.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fact stream stopping due to context cancellation")
			s.close()
			return ctx.Err()
		default:
		}

		if err := s.connect(ctx); err != nil {
			attempt := atomic.AddInt64(&s.reconnectCount, 1)
			delay := s.computeBackoff()
			s.logger.Warn("fact stream connection failed",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt),
				slog.Duration("retry_in", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&s.reconnectCount, 0)
		s.readLoop(ctx)
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	s.logger.Info("connecting to ledger fact stream", slog.String("url", s.config.URL))

	dialer := websocket.Dialer{HandshakeTimeout: s.config.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("connected to ledger fact stream")
	return nil
}

func (s *Subscriber) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("fact stream connection closed", slog.String("error", err.Error()))
			s.close()
			return
		}

		fact, err := DecodeFact(payload)
		if err != nil {
			// Malformed frames are dropped, not fatal.
			s.logger.Warn("dropping undecodable fact frame", slog.String("error", err.Error()))
			continue
		}

		if s.handler != nil {
			if err := s.handler(ctx, fact); err != nil {
				s.logger.Error("fact handler error",
					slog.String("kind", fact.Kind),
					slog.String("error", err.Error()))
				s.close()
				return
			}
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// computeBackoff calculates the next reconnection delay with exponential
// backoff and jitter.
func (s *Subscriber) computeBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift := uint(atomic.LoadInt64(&s.reconnectCount))
	if shift > 30 {
		shift = 30
	}
	delay := s.config.BaseDelay << shift
	if delay > s.config.MaxDelay || delay <= 0 {
		delay = s.config.MaxDelay
	}
	// Up to 25% jitter to avoid thundering-herd reconnects.
	jitter := time.Duration(s.rng.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
