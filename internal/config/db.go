package config

import (
	"context"
	"database/sql"
	"time"
)

// Schema for the magnifier_profiles table. Profiles let one deployment
// drive several pages with per-page overlay settings.
const Schema = `
CREATE TABLE IF NOT EXISTS magnifier_profiles (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL,
	size            INTEGER DEFAULT 200,
	zoom            REAL DEFAULT 2.0,
	pos_x           INTEGER DEFAULT 20,
	pos_y           INTEGER DEFAULT 20,
	activation_mode TEXT DEFAULT 'drag',
	region_scale    REAL DEFAULT 2.0,
	status          TEXT DEFAULT 'active',
	updated_at      INTEGER NOT NULL
);
`

// Profile is a row from the magnifier_profiles table.
type Profile struct {
	ID      string
	URL     string
	Overlay Overlay
}

// LoadProfiles reads all active profiles from the database.
func LoadProfiles(ctx context.Context, db *sql.DB) ([]Profile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, size, zoom, pos_x, pos_y, activation_mode, region_scale
		FROM magnifier_profiles
		WHERE status = 'active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p := Profile{Overlay: Overlay{Position: &Position{}}}
		if err := rows.Scan(&p.ID, &p.URL,
			&p.Overlay.Size, &p.Overlay.Zoom,
			&p.Overlay.Position.X, &p.Overlay.Position.Y,
			&p.Overlay.ActivationMode, &p.Overlay.RegionScale); err != nil {
			return nil, err
		}
		p.Overlay.ApplyDefaults()
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// EnsureSchema creates the profiles table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, Schema)
	return err
}
