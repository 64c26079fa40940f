package sheets

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName  = "Contacts"
	defaultSessions   = 1
	defaultRatePerSec = 1.0
	defaultBurst      = 5
)

// Target is the Google Sheets export target. Each tenant gets its own pool of
// sessions; all sessions share one rate limiter since Sheets quotas are per
// credential.
type Target struct {
	svc     *gsheets.Service
	limiter *rate.Limiter
	pool    *sessionPool
}

var _ interfaces.ExportTarget = &Target{}

type config struct {
	clientOptions []option.ClientOption
	sessions      int
	ratePerSec    float64
	burst         int
}

// Option is a functional option for Target configuration
type Option func(*config)

// WithCredentialsFile authenticates with a service account JSON file. Without
// it Application Default Credentials are used.
func WithCredentialsFile(path string) Option {
	return func(c *config) {
		c.clientOptions = append(c.clientOptions, option.WithCredentialsFile(path))
	}
}

// WithEndpoint points the client at a different API endpoint
func WithEndpoint(endpoint string, client *http.Client) Option {
	return func(c *config) {
		c.clientOptions = append(c.clientOptions,
			option.WithEndpoint(endpoint),
			option.WithHTTPClient(client),
		)
	}
}

// WithSessionsPerTenant sets how many concurrent sessions a tenant may borrow.
// One session serializes all writes to a tenant's sheet.
func WithSessionsPerTenant(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.sessions = n
		}
	}
}

// WithRateLimit sets the request rate shared by all sessions
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *config) {
		if perSec > 0 {
			c.ratePerSec = perSec
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// New creates a Sheets export target
func New(ctx context.Context, opts ...Option) (*Target, error) {
	cfg := &config{
		sessions:   defaultSessions,
		ratePerSec: defaultRatePerSec,
		burst:      defaultBurst,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := gsheets.NewService(ctx, cfg.clientOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sheets service")
	}

	t := &Target{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(cfg.ratePerSec), cfg.burst),
	}
	t.pool = newSessionPool(cfg.sessions, t.newSession)
	return t, nil
}

func (t *Target) newSession(tenant *model.Tenant) *session {
	sheetName := tenant.SheetName
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &session{
		values:        t.svc.Spreadsheets.Values,
		limiter:       t.limiter,
		spreadsheetID: tenant.SpreadsheetID,
		sheetName:     sheetName,
	}
}

// Acquire borrows a session for the tenant's spreadsheet. The release function
// returns it to the pool.
func (t *Target) Acquire(ctx context.Context, tenant *model.Tenant) (interfaces.ExportSession, func(), error) {
	if !tenant.ExportConfigured() {
		return nil, nil, goerr.New("tenant has no spreadsheet configured",
			goerr.V("tenant_id", tenant.ID))
	}

	s, err := t.pool.acquire(ctx, tenant)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { t.pool.release(tenant.ID, s) }, nil
}
