package login

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Session is the ephemeral state correlating one /login request with its
// /login/callback. It becomes usable for callback processing only once Valid
// is set, and it is consumed exactly once.
type Session struct {
	Nonce    string
	Provider int
	Origin   string
	Valid    bool

	// OAuth2 anti-CSRF state or OAuth1 request token secret, depending on
	// the selected provider.
	State            string
	OAuthTokenSecret string

	// Debug interstitial state for loopback origins.
	Debug      bool
	DebugToken string
}

// SessionStore keeps sessions keyed by the opaque cookie value, with TTL
// expiry. Take removes on read so a callback can never be replayed against
// the same session.
type SessionStore interface {
	Put(sessionID string, session Session)
	Get(sessionID string) (Session, bool)
	Take(sessionID string) (Session, bool)
}

// NewSessionID returns a fresh opaque session cookie value.
func NewSessionID() string {
	return uuid.NewString()
}

type cacheSessionStore struct {
	// takeMutex serializes Take: go-cache has no compare-and-delete, so
	// get-then-delete must be guarded for the consumed-exactly-once
	// guarantee to hold under concurrent callbacks with the same cookie.
	takeMutex sync.Mutex
	cache     *gocache.Cache
}

// NewCacheSessionStore constructs a SessionStore with the supplied TTL.
// Expired sessions are reaped in the background at twice the TTL.
func NewCacheSessionStore(ttl time.Duration) SessionStore {
	return &cacheSessionStore{cache: gocache.New(ttl, 2*ttl)}
}

func (store *cacheSessionStore) Put(sessionID string, session Session) {
	store.cache.SetDefault(sessionID, session)
}

func (store *cacheSessionStore) Get(sessionID string) (Session, bool) {
	value, found := store.cache.Get(sessionID)
	if !found {
		return Session{}, false
	}
	session, ok := value.(Session)
	return session, ok
}

func (store *cacheSessionStore) Take(sessionID string) (Session, bool) {
	store.takeMutex.Lock()
	defer store.takeMutex.Unlock()
	session, found := store.Get(sessionID)
	if found {
		store.cache.Delete(sessionID)
	}
	return session, found
}
