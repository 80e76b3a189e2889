package loupe

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/loupe/internal/config"
)

// Config is the top-level loupe configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls how Chrome is reached.
type BrowserConfig = config.Browser

// OverlayConfig is the per-magnifier overlay configuration.
type OverlayConfig = config.Overlay

// PageConfig defines a page to magnify.
type PageConfig = config.Page

// PreviewConfig configures the optional HTTP preview endpoint.
type PreviewConfig = config.Preview

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// Profile is one row of the magnifier_profiles table.
type Profile = config.Profile

// EnsureProfileSchema creates the profiles table when missing.
func EnsureProfileSchema(ctx context.Context, db *sql.DB) error {
	return config.EnsureSchema(ctx, db)
}

// LoadProfiles reads all active magnifier profiles from the database.
func LoadProfiles(ctx context.Context, db *sql.DB) ([]Profile, error) {
	return config.LoadProfiles(ctx, db)
}
