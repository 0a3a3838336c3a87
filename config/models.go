package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"keepersecurity.com/ksm-scim-sync/scim"
)

// Config holds application configuration.
type Config struct {
	Google  GoogleConfig  `mapstructure:"google"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// GoogleConfig describes the Google Workspace source directory.
type GoogleConfig struct {
	ServiceAccountFile  string   `mapstructure:"service_account_file"`
	SubjectEmail        string   `mapstructure:"subject_email"`
	Customer            string   `mapstructure:"customer"`
	OrganizationalUnits []string `mapstructure:"organizational_units"`
	Groups              []string `mapstructure:"groups"`
	IndividualUsers     []string `mapstructure:"individual_users"`
	OrgUnitFilter       []string `mapstructure:"org_unit_filter"`
}

// GitHubConfig describes the SCIM target and its identity mapping rules.
type GitHubConfig struct {
	ScimURL            string   `mapstructure:"scim_url"`
	ScimToken          string   `mapstructure:"scim_token"`
	EmuUsernameSuffix  string   `mapstructure:"emu_username_suffix"`
	EnterpriseOwners   []string `mapstructure:"enterprise_owners"`
	BillingManagers    []string `mapstructure:"billing_managers"`
	GuestCollaborators []string `mapstructure:"guest_collaborators"`
	Verbose            bool     `mapstructure:"verbose"`
}

// SyncConfig contains synchronization behaviour switches.
type SyncConfig struct {
	Mode             string `mapstructure:"mode"`
	DeleteSuspended  bool   `mapstructure:"delete_suspended"`
	CreateTeams      bool   `mapstructure:"create_teams"`
	FlattenHierarchy bool   `mapstructure:"flatten_hierarchy"`
	IncludeSuspended bool   `mapstructure:"include_suspended"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Google.ServiceAccountFile == "" {
		return errors.New("google.service_account_file is required")
	}
	if info, err := os.Stat(c.Google.ServiceAccountFile); err != nil {
		return fmt.Errorf("service account file not found: %s", c.Google.ServiceAccountFile)
	} else if info.IsDir() {
		return fmt.Errorf("service account path is not a file: %s", c.Google.ServiceAccountFile)
	}
	if c.Google.SubjectEmail == "" {
		return errors.New("google.subject_email is required")
	}
	if !strings.HasPrefix(c.GitHub.ScimURL, "http://") && !strings.HasPrefix(c.GitHub.ScimURL, "https://") {
		return errors.New("github.scim_url must start with http:// or https://")
	}
	if c.GitHub.ScimToken == "" {
		return errors.New("github.scim_token is required")
	}
	if _, err := scim.ParseSyncMode(c.Sync.Mode); err != nil {
		return err
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	return nil
}

// LogLevel returns the level in the form zap understands.
func (l LoggingConfig) LogLevel() string {
	if strings.EqualFold(l.Level, "WARNING") {
		return "warn"
	}
	return strings.ToLower(l.Level)
}

// Scope returns the source scope the configuration selects.
func (c Config) Scope() scim.Scope {
	return scim.Scope{
		OrgUnits:        c.Google.OrganizationalUnits,
		Groups:          c.Google.Groups,
		IndividualUsers: c.Google.IndividualUsers,
	}
}

// SyncOptions converts the sync section for the synchronizer.
func (c Config) SyncOptions() scim.SyncOptions {
	var mode, _ = scim.ParseSyncMode(c.Sync.Mode)
	return scim.SyncOptions{
		Mode:             mode,
		DeleteSuspended:  c.Sync.DeleteSuspended,
		CreateTeams:      c.Sync.CreateTeams,
		FlattenHierarchy: c.Sync.FlattenHierarchy,
		IncludeSuspended: c.Sync.IncludeSuspended,
		OrgUnitFilter:    c.Google.OrgUnitFilter,
	}
}

// Mapper builds the identity mapper from the github section.
func (c Config) Mapper() *scim.IdentityMapper {
	return &scim.IdentityMapper{
		UsernameSuffix:     c.GitHub.EmuUsernameSuffix,
		EnterpriseOwners:   c.GitHub.EnterpriseOwners,
		BillingManagers:    c.GitHub.BillingManagers,
		GuestCollaborators: c.GitHub.GuestCollaborators,
	}
}

// GoogleParameters returns the source endpoint parameters, reading the service account key.
func (c Config) GoogleParameters() (*scim.GoogleEndpointParameters, error) {
	credentials, err := os.ReadFile(c.Google.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return &scim.GoogleEndpointParameters{
		AdminAccount: c.Google.SubjectEmail,
		Credentials:  credentials,
		Customer:     c.Google.Customer,
	}, nil
}

// ScimParameters returns the target endpoint parameters.
func (c Config) ScimParameters() *scim.ScimEndpointParameters {
	return &scim.ScimEndpointParameters{
		Url:     c.GitHub.ScimURL,
		Token:   c.GitHub.ScimToken,
		Verbose: c.GitHub.Verbose,
	}
}
