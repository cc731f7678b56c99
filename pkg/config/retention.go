package config

import "time"

// RetentionConfig controls automatic purging of closed cases and stale
// event rows.
type RetentionConfig struct {
	// Enabled turns the background retention sweeper on.
	Enabled bool

	// PurgeAfter is how long a CLOSED case is kept before hard deletion.
	PurgeAfter Duration

	// SweepInterval is how often the sweeper scans for purgable cases.
	SweepInterval Duration

	// EventTTL is the maximum age of delivered event rows before deletion.
	// Live subscribers consume events within seconds; this is a safety net.
	EventTTL Duration
}

// DefaultRetentionConfig returns the built-in retention defaults:
// closed cases are purged after 90 days, sweeping hourly.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Enabled:       true,
		PurgeAfter:    Duration(2160 * time.Hour),
		SweepInterval: Duration(1 * time.Hour),
		EventTTL:      Duration(1 * time.Hour),
	}
}
