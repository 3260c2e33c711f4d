package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/metrics"
	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/chat/store"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
)

var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrSessionRequired = errors.New("session id is required")
	ErrSendInProgress  = errors.New("a message is already being sent for this session")
)

// Sender delivers an utterance to the answering service.
type Sender interface {
	Send(ctx context.Context, utterance, sessionID string) ([]chat.Turn, error)
}

// Exchange is the outcome of one Send. User is set whenever the user turn
// was recorded, even if the answering service then failed.
type Exchange struct {
	SessionID string
	User      chat.Turn
	Assistant []chat.Turn
}

// Service manages conversations on top of a transcript store.
type Service struct {
	sender  Sender
	store   store.Store
	broker  *Broker
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}

	// writeMu serialises read-modify-write cycles on the store.
	writeMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithBroker publishes appended turns to b.
func WithBroker(b *Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithMetrics records send outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a chat service.
func NewService(sender Sender, st store.Store, opts ...Option) *Service {
	if st == nil {
		st = store.NewMemory()
	}
	s := &Service{
		sender:   sender,
		store:    st,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broker returns the broker turns are published to, if any.
func (s *Service) Broker() *Broker { return s.broker }

// Send records the user's utterance, forwards it to the answering service
// and records the reply. Only one send per session may be outstanding.
//
// When the answering service fails the returned Exchange still carries the
// recorded user turn, alongside the *remote.SendError.
func (s *Service) Send(ctx context.Context, sessionID, utterance string) (Exchange, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Exchange{}, ErrEmptyMessage
	}
	if sessionID == "" {
		return Exchange{}, ErrSessionRequired
	}
	if !s.acquire(sessionID) {
		return Exchange{}, ErrSendInProgress
	}
	defer s.release(sessionID)

	ex := Exchange{SessionID: sessionID}

	userTurns, err := s.append(ctx, sessionID, []chat.Turn{chat.NewUserTurn(uuid.NewString(), utterance, s.now())})
	if err != nil {
		return ex, err
	}
	ex.User = userTurns[0]
	s.broker.Publish(sessionID, userTurns)

	start := time.Now()
	turns, err := s.sender.Send(ctx, utterance, sessionID)
	s.metrics.ObserveSend(outcome(err), time.Since(start))
	if err != nil {
		s.logger.Warn("send failed",
			zap.String("session_id", sessionID),
			zap.String("outcome", outcome(err)),
			zap.Error(err))
		return ex, err
	}

	appended, err := s.append(ctx, sessionID, turns)
	if err != nil {
		return ex, err
	}
	ex.Assistant = appended
	s.broker.Publish(sessionID, appended)

	s.logger.Info("exchange complete",
		zap.String("session_id", sessionID),
		zap.Int("assistant_turns", len(appended)))
	return ex, nil
}

// Ingest records turns pushed by the answering side and returns the ones
// that were new.
func (s *Service) Ingest(ctx context.Context, sessionID string, turns []chat.Turn) ([]chat.Turn, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	appended, err := s.append(ctx, sessionID, turns)
	if err != nil {
		return nil, err
	}
	s.metrics.AddIngested(len(appended))
	s.broker.Publish(sessionID, appended)
	return appended, nil
}

// Transcript returns the stored turns of sessionID.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	turns, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return turns, nil
}

// Busy reports whether a send is outstanding for sessionID.
func (s *Service) Busy(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[sessionID]
	return ok
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return false
	}
	s.inflight[sessionID] = struct{}{}
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

func (s *Service) append(ctx context.Context, sessionID string, turns []chat.Turn) ([]chat.Turn, error) {
	if len(turns) == 0 {
		return []chat.Turn{}, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	conv := NewConversation(existing...)

	appended := make([]chat.Turn, 0, len(turns))
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		added, err := conv.Append(t)
		if errors.Is(err, ErrDuplicateTurn) {
			s.logger.Debug("skipping duplicate turn", zap.String("session_id", sessionID), zap.String("turn_id", t.ID))
			continue
		}
		appended = append(appended, added)
	}

	if len(appended) == 0 {
		return appended, nil
	}
	if err := s.store.Put(ctx, sessionID, conv.Turns()); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	return appended, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var sendErr *remote.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind.String()
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}
