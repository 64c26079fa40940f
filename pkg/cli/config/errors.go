package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound     = goerr.New("configuration file not found")
	ErrInvalidConfig      = goerr.New("invalid configuration")
	ErrNoTenants          = goerr.New("at least one tenant is required")
	ErrDuplicateTenantID  = goerr.New("duplicate tenant ID")
	ErrDuplicateSlackTeam = goerr.New("slack team is monitored by more than one tenant")
	ErrMissingName        = goerr.New("name is required")
	ErrMissingSlackUser   = goerr.New("slack_user_id is required with slack_team_id")
)

// Context keys for error values
const (
	ConfigPathKey  = "config_path"
	TenantIDKey    = "tenant_id"
	TenantIndexKey = "tenant_index"
	SlackTeamKey   = "slack_team_id"
)
