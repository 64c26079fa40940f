package slack

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for the profile cache
	DefaultCacheTTL = 10 * time.Minute
)

// cacheEntry holds a cached profile with expiration
type cacheEntry struct {
	profile   model.Profile
	expiresAt time.Time
}

// Client resolves counterpart profiles in one Slack workspace
type Client struct {
	api      *slack.Client
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

var _ interfaces.ProfileLookup = &Client{}

type config struct {
	cacheTTL time.Duration
	apiURL   string
}

// Option is a functional option for client configuration
type Option func(*config)

// WithCacheTTL sets the TTL for the profile cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL overrides the Slack API base URL
func WithAPIURL(url string) Option {
	return func(c *config) {
		c.apiURL = url
	}
}

// New creates a new Slack client with the provided bot token
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	cfg := &config{cacheTTL: DefaultCacheTTL}
	for _, opt := range opts {
		opt(cfg)
	}

	var slackOpts []slack.Option
	if cfg.apiURL != "" {
		slackOpts = append(slackOpts, slack.OptionAPIURL(cfg.apiURL))
	}

	return &Client{
		api:      slack.New(token, slackOpts...),
		cacheTTL: cfg.cacheTTL,
		cache:    make(map[string]cacheEntry),
	}, nil
}

// LookupProfile retrieves the user's name, handle and title. Results are
// cached since a chatty counterpart triggers one lookup per message.
func (c *Client) LookupProfile(ctx context.Context, userID string) (*model.Profile, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[userID]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		p := entry.profile
		return &p, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V("user_id", userID))
	}

	profile := toProfile(user)

	c.mu.Lock()
	c.cache[userID] = cacheEntry{
		profile:   profile,
		expiresAt: now.Add(c.cacheTTL),
	}
	c.mu.Unlock()

	return &profile, nil
}

func toProfile(user *slack.User) model.Profile {
	name := user.Profile.RealName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Profile.DisplayName
	}

	handle := user.Profile.DisplayName
	if handle == "" {
		handle = user.Name
	}

	return model.Profile{
		Name:   name,
		Handle: handle,
		Bio:    user.Profile.Title,
	}
}
