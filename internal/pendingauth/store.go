package pendingauth

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultValidity  = 10 * time.Minute
	DefaultReadGrace = 2 * time.Minute
)

var errSessionIDRequired = errors.New("session id is required")

// Tokens is the credential pair staged for a checkout session.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store stages tokens between account creation and the client's first poll.
// Get returns (nil, nil) when nothing is staged or the entry lapsed.
type Store interface {
	Put(ctx context.Context, sessionID string, tokens Tokens) error
	Get(ctx context.Context, sessionID string) (*Tokens, error)
	Sweep(ctx context.Context) (int, error)
}

type entry struct {
	tokens      Tokens
	firstReadAt *time.Time
}

type CacheOptions struct {
	Validity  time.Duration
	ReadGrace time.Duration
	Now       func() time.Time
}

// Cache is the process-local Store. Entries stay readable for ReadGrace after
// the first read, and never past Validity from creation.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	validity  time.Duration
	readGrace time.Duration
	now       func() time.Time
}

func NewCache(opts CacheOptions) *Cache {
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	if opts.ReadGrace <= 0 {
		opts.ReadGrace = DefaultReadGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:   make(map[string]*entry),
		validity:  opts.Validity,
		readGrace: opts.ReadGrace,
		now:       opts.Now,
	}
}

func (c *Cache) Put(_ context.Context, sessionID string, tokens Tokens) error {
	if sessionID == "" {
		return errSessionIDRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tokens.CreatedAt.IsZero() {
		tokens.CreatedAt = c.now()
	}
	c.entries[sessionID] = &entry{tokens: tokens}
	return nil
}

func (c *Cache) Get(_ context.Context, sessionID string) (*Tokens, error) {
	if sessionID == "" {
		return nil, errSessionIDRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sessionID]
	if !ok {
		return nil, nil
	}
	now := c.now()
	if c.expired(e, now) {
		delete(c.entries, sessionID)
		return nil, nil
	}
	if e.firstReadAt == nil {
		e.firstReadAt = &now
	}
	out := e.tokens
	return &out, nil
}

// Sweep drops every lapsed entry and returns how many were removed.
func (c *Cache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	if now.Sub(e.tokens.CreatedAt) >= c.validity {
		return true
	}
	return e.firstReadAt != nil && now.Sub(*e.firstReadAt) >= c.readGrace
}
