package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"flynance/internal/cache"
	"flynance/internal/filters"
	"flynance/internal/period"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "flynance_session"

// SessionConfig tunes the session table.
type SessionConfig struct {
	TTL         time.Duration
	MaxSessions int
	Secure      bool
}

// Sessions maps session ids to filter stores. Entries expire after TTL
// without access; the least recently used session is dropped when full.
type Sessions struct {
	stores   *cache.LRUCache[*filters.Store]
	resolver *period.Resolver
	ttl      time.Duration
	secure   bool
}

func NewSessions(cfg SessionConfig, r *period.Resolver) *Sessions {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 10000
	}
	return &Sessions{
		stores:   cache.NewLRUCache[*filters.Store](cfg.MaxSessions, cfg.TTL),
		resolver: r,
		ttl:      cfg.TTL,
		secure:   cfg.Secure,
	}
}

// Load returns the session id and filter store for r. A request without a
// live session gets a fresh store and a new cookie. Every access restarts
// the TTL.
func (s *Sessions) Load(w http.ResponseWriter, r *http.Request) (string, *filters.Store) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			key := id.String()
			if store, ok := s.stores.Get(key); ok {
				s.stores.Set(key, store)
				s.setCookie(w, key)
				return key, store
			}
		}
	}

	id := uuid.NewString()
	store := filters.NewStore(filters.WithResolver(s.resolver))
	s.stores.Set(id, store)
	s.setCookie(w, id)
	return id, store
}

// Len is the number of live sessions.
func (s *Sessions) Len() int {
	return s.stores.Size()
}

// Register adds the session table to a cleanup manager.
func (s *Sessions) Register(m *cache.Manager) {
	m.Register("sessions", s.stores)
}

func (s *Sessions) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
