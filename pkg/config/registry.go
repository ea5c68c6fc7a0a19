package config

import "time"

// RegistryConfig selects where instances publish their locations.
//
// The memory backend only serves instances sharing one process; separate
// nodes need redis.
type RegistryConfig struct {
	Backend   string `mapstructure:"backend"` // memory or redis
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTLMS expires registrations of nodes that die without deregistering.
	TTLMS         int `mapstructure:"ttl_ms"`
	WaitTimeoutMS int `mapstructure:"wait_timeout_ms"`
	PollMS        int `mapstructure:"poll_ms"`
}

func (r RegistryConfig) TTL() time.Duration { return time.Duration(r.TTLMS) * time.Millisecond }

func (r RegistryConfig) WaitTimeout() time.Duration {
	return time.Duration(r.WaitTimeoutMS) * time.Millisecond
}

func (r RegistryConfig) Poll() time.Duration { return time.Duration(r.PollMS) * time.Millisecond }
