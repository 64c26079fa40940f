package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// TenantConfig is one [[tenant]] entry of the tenants file
type TenantConfig struct {
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	SlackTeamID   string `toml:"slack_team_id"`
	SlackUserID   string `toml:"slack_user_id"`
	SlackBotToken string `toml:"slack_bot_token" masq:"secret"`
	SpreadsheetID string `toml:"spreadsheet_id"`
	SheetName     string `toml:"sheet_name"`
	ExcerptCap    int    `toml:"excerpt_cap"`
	// AutoExport defaults to true when omitted
	AutoExport *bool `toml:"auto_export"`
}

type tenantsFile struct {
	Tenants []TenantConfig `toml:"tenant"`
}

// Validate checks a single tenant entry
func (t *TenantConfig) Validate() error {
	id := types.TenantID(t.ID)
	if err := id.Validate(); err != nil {
		return goerr.Wrap(err, "invalid tenant ID", goerr.V(TenantIDKey, t.ID))
	}
	if t.Name == "" {
		return goerr.Wrap(ErrMissingName, "tenant name is required", goerr.V(TenantIDKey, t.ID))
	}
	if t.SlackTeamID != "" && t.SlackUserID == "" {
		return goerr.Wrap(ErrMissingSlackUser, "monitored user is required", goerr.V(TenantIDKey, t.ID))
	}
	if t.ExcerptCap < 0 {
		return goerr.Wrap(ErrInvalidConfig, "excerpt_cap must not be negative",
			goerr.V(TenantIDKey, t.ID),
			goerr.V("excerpt_cap", t.ExcerptCap))
	}
	return nil
}

// ToModel converts the entry into a domain tenant
func (t *TenantConfig) ToModel() *model.Tenant {
	autoExport := true
	if t.AutoExport != nil {
		autoExport = *t.AutoExport
	}
	return &model.Tenant{
		ID:            types.TenantID(t.ID),
		Name:          t.Name,
		SlackTeamID:   t.SlackTeamID,
		SlackUserID:   t.SlackUserID,
		SpreadsheetID: t.SpreadsheetID,
		SheetName:     t.SheetName,
		ExcerptCap:    t.ExcerptCap,
		AutoExport:    autoExport,
	}
}

// LoadTenants reads and validates a tenants TOML file
func LoadTenants(path string) ([]TenantConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "tenants file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read tenants file", goerr.V(ConfigPathKey, path))
	}

	var file tenantsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path),
			goerr.V("cause", err.Error()))
	}

	if err := validateTenants(file.Tenants); err != nil {
		return nil, goerr.Wrap(err, "tenants validation failed", goerr.V(ConfigPathKey, path))
	}

	return file.Tenants, nil
}

func validateTenants(tenants []TenantConfig) error {
	if len(tenants) == 0 {
		return ErrNoTenants
	}

	ids := make(map[string]bool)
	teams := make(map[string]string)
	for i := range tenants {
		t := &tenants[i]
		if err := t.Validate(); err != nil {
			return goerr.Wrap(err, "invalid tenant", goerr.V(TenantIndexKey, i))
		}
		if ids[t.ID] {
			return goerr.Wrap(ErrDuplicateTenantID, "tenant defined twice", goerr.V(TenantIDKey, t.ID))
		}
		ids[t.ID] = true

		if t.SlackTeamID == "" {
			continue
		}
		if other, ok := teams[t.SlackTeamID]; ok {
			return goerr.Wrap(ErrDuplicateSlackTeam, "slack team already assigned",
				goerr.V(SlackTeamKey, t.SlackTeamID),
				goerr.V(TenantIDKey, t.ID),
				goerr.V("other_tenant_id", other))
		}
		teams[t.SlackTeamID] = t.ID
	}
	return nil
}

// Tenants holds the CLI flag pointing at the tenants file and its loaded entries
type Tenants struct {
	path    string
	entries []TenantConfig
}

func (x *Tenants) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tenants",
			Aliases:     []string{"c"},
			Usage:       "Path to the tenants TOML file",
			Category:    "Tenants",
			Value:       "./tenants.toml",
			Sources:     cli.EnvVars("CONTRACK_TENANTS_FILE"),
			Destination: &x.path,
		},
	}
}

func (x Tenants) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
		slog.Int("count", len(x.entries)),
	)
}

// Configure loads the tenants file and builds the registry
func (x *Tenants) Configure() (*model.TenantRegistry, error) {
	entries, err := LoadTenants(x.path)
	if err != nil {
		return nil, err
	}
	x.entries = entries

	registry := model.NewTenantRegistry()
	for i := range entries {
		registry.Register(entries[i].ToModel())
	}
	return registry, nil
}

// Entries returns the loaded tenant entries. Configure must be called first.
func (x *Tenants) Entries() []TenantConfig {
	return x.entries
}

// AnyExportConfigured reports whether a loaded tenant has a spreadsheet
func (x *Tenants) AnyExportConfigured() bool {
	for _, t := range x.entries {
		if t.SpreadsheetID != "" {
			return true
		}
	}
	return false
}
