package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/metrics"
	"github.com/GueYatma/koktek-front/internal/repository"
	"github.com/GueYatma/koktek-front/internal/service"
)

// Session identification.
const (
	SessionCookie = "koktek_session"
	SessionHeader = "X-Session-ID"
)

// Session is the state one browser would have kept locally.
type Session struct {
	ID       string
	Cart     *service.CartManager
	Profile  *service.ProfileService
	Checkout *service.Checkout

	lastSeen time.Time
}

// SessionFactory builds the state of a new or returning session.
type SessionFactory func(ctx context.Context, id string) *Session

// SessionDeps are the shared dependencies of every session.
type SessionDeps struct {
	Store       localstore.Store
	Carts       repository.CartRepository
	Customers   repository.CustomerRepository
	Orders      repository.OrderRepository
	Catalog     service.CatalogProvider
	Notifier    service.CashNotifier
	Publisher   messaging.Publisher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	SyncTimeout time.Duration
}

// NewSessionFactory namespaces the session's cart, profile and checkout in
// the store; order history is shared between sessions and keyed by email.
func NewSessionFactory(d SessionDeps) SessionFactory {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := d.Publisher
	if publisher == nil {
		publisher = messaging.Discard
	}
	history := localstore.NewOrderHistory(d.Store)

	return func(ctx context.Context, id string) *Session {
		ns := localstore.Namespace(d.Store, "session:"+id+":")
		sl := logger.With("session", id)

		opts := []service.CartOption{service.WithCartLogger(sl), service.WithCartMetrics(d.Metrics)}
		if d.SyncTimeout > 0 {
			opts = append(opts, service.WithSyncTimeout(d.SyncTimeout))
		}
		cart := service.NewCartManager(ctx, d.Carts, d.Catalog, localstore.NewCartStorage(ns), opts...)
		profile := service.NewProfileService(localstore.NewProfileStorage(ns), history, sl)
		checkout := service.NewCheckout(cart, d.Customers, d.Orders, profile, d.Notifier,
			service.WithCheckoutLogger(sl),
			service.WithCheckoutMetrics(d.Metrics),
			service.WithPublisher(publisher),
			service.WithCheckoutStorage(localstore.NewCheckoutStorage(ns)),
		)
		checkout.Restore(ctx)
		return &Session{ID: id, Cart: cart, Profile: profile, Checkout: checkout}
	}
}

// Sessions holds live sessions in memory. Their persistent state lives in
// the store, so an evicted session is rebuilt on its next request.
type Sessions struct {
	factory SessionFactory
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(factory SessionFactory, ttl time.Duration, m *metrics.Metrics) *Sessions {
	return &Sessions{
		factory:  factory,
		ttl:      ttl,
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session id, creating it on first use.
func (s *Sessions) Get(ctx context.Context, id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		// Background reconciliation must outlive the request.
		sess = s.factory(context.WithoutCancel(ctx), id)
		s.sessions[id] = sess
		s.metrics.SessionsChanged(1)
	}
	sess.lastSeen = s.now()
	return sess
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were dropped. A session left on a successful checkout leaves it first, so
// its cart is cleared and the remote cart closed.
func (s *Sessions) Sweep(ctx context.Context) int {
	s.mu.Lock()
	var idle []*Session
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		if sess.Checkout.Leave(ctx) {
			slog.Debug("http: idle session left its checkout", "session", sess.ID)
		}
		sess.Cart.Wait()
	}
	s.metrics.SessionsChanged(-len(idle))
	return len(idle)
}

// Run sweeps periodically until ctx is done.
func (s *Sessions) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				slog.Debug("http: idle sessions dropped", "count", n)
			}
		}
	}
}

// Wait blocks until background cart work of every session has finished.
func (s *Sessions) Wait() {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.Cart.Wait()
	}
}

// sessionID reads the session id from the header or cookie. A missing or
// malformed id yields a fresh one.
func sessionID(r *http.Request) (id string, fresh bool) {
	if v := r.Header.Get(SessionHeader); v != "" {
		if _, err := uuid.Parse(v); err == nil {
			return v, false
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value, false
		}
	}
	return uuid.NewString(), true
}
