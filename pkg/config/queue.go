package config

import "time"

// QueueConfig contains turn executor and case lease configuration.
// These values control how turns are serialized, claimed, and reclaimed.
type QueueConfig struct {
	// MaxConcurrentTurns is the limit of turns processed at once by this
	// replica. Per-case serialization is enforced separately by leases.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`

	// LeaseTTL is how long a case lease stays valid without a heartbeat.
	// A crashed worker's lease expires after this long.
	LeaseTTL Duration `yaml:"lease_ttl"`

	// HeartbeatInterval is how often a worker extends its lease while a
	// turn is in flight. Must be well below LeaseTTL.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// OrphanSweepInterval is how often expired leases are reclaimed.
	OrphanSweepInterval Duration `yaml:"orphan_sweep_interval"`

	// TurnTimeout bounds a single turn end to end, including the LLM call.
	TurnTimeout Duration `yaml:"turn_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight turns
	// to complete during shutdown. Should be at least TurnTimeout.
	GracefulShutdownTimeout Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrentTurns:      8,
		LeaseTTL:                Duration(120 * time.Second),
		HeartbeatInterval:       Duration(30 * time.Second),
		OrphanSweepInterval:     Duration(60 * time.Second),
		TurnTimeout:             Duration(5 * time.Minute),
		GracefulShutdownTimeout: Duration(5 * time.Minute),
	}
}
