package config

import "time"

// Config is the root configuration for RailState.
type Config struct {
	Store    StoreSection    `koanf:"store"`
	Fallback FallbackSection `koanf:"fallback"`
	TTL      TTLSection      `koanf:"ttl"`
	Lock     LockSection     `koanf:"lock"`
	Codec    CodecSection    `koanf:"codec"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Log      LogSection      `koanf:"log"`
}

// StoreSection configures the networked backing store.
type StoreSection struct {
	// Enabled selects the networked store. When false every operation
	// runs against the fallback store.
	Enabled bool `koanf:"enabled"`

	// URL is the backing store address, e.g. rediss://:secret@host:6380/0.
	URL string `koanf:"url"`

	KeyPrefix string `koanf:"key_prefix"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `koanf:"ca_file"`

	// Workers is the expected number of concurrent callers. PoolSize
	// defaults to twice this value.
	Workers  int `koanf:"workers"`
	PoolSize int `koanf:"pool_size"`

	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	SocketTimeout  time.Duration `koanf:"socket_timeout"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`

	HealthInterval   time.Duration `koanf:"health_interval"`
	FailureThreshold int           `koanf:"failure_threshold"`
	ReconnectMin     time.Duration `koanf:"reconnect_min"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`

	// RetryAttempts bounds attempts of a single command on transient faults.
	RetryAttempts int `koanf:"retry_attempts"`
}

// FallbackSection configures the in-process fallback store.
type FallbackSection struct {
	Enabled       bool          `koanf:"enabled"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// Zero disables the corresponding limit.
	MaxEntries            int   `koanf:"max_entries"`
	MaxBytes              int64 `koanf:"max_bytes"`
	MemoryPressurePercent int   `koanf:"memory_pressure_percent"`
}

// TTLSection configures lifetimes that are not fixed per entity kind.
type TTLSection struct {
	ApprovalRetention time.Duration `koanf:"approval_retention"`
	Metric            time.Duration `koanf:"metric"`
}

// LockSection configures the per-resource update lock.
type LockSection struct {
	Wait          time.Duration `koanf:"wait"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// CodecSection configures record encoding.
type CodecSection struct {
	MaxPayloadBytes int `koanf:"max_payload_bytes"`
}

// MetricsSection configures the metrics endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
