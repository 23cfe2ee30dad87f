package config

import "time"

// Default configuration values.
const (
	DefaultStoreURL       = "rediss://127.0.0.1:6380/0"
	DefaultKeyPrefix      = "ai_rails"
	DefaultWorkers        = 25
	DefaultConnectTimeout = 5 * time.Second
	DefaultSocketTimeout  = 5 * time.Second
	DefaultAcquireTimeout = 2 * time.Second

	DefaultHealthInterval   = 15 * time.Second
	DefaultFailureThreshold = 3
	DefaultReconnectMin     = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
	DefaultRetryAttempts    = 3

	DefaultSweepInterval = time.Minute

	DefaultApprovalRetention = 24 * time.Hour
	DefaultMetricTTL         = 24 * time.Hour

	DefaultLockWait          = 5 * time.Second
	DefaultLockRetryInterval = 20 * time.Millisecond

	DefaultMaxPayloadBytes = 1 << 20

	DefaultMetricsAddr = "127.0.0.1:9464"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreSection{
			Enabled:          true,
			URL:              DefaultStoreURL,
			KeyPrefix:        DefaultKeyPrefix,
			Workers:          DefaultWorkers,
			PoolSize:         DefaultWorkers * 2,
			ConnectTimeout:   DefaultConnectTimeout,
			SocketTimeout:    DefaultSocketTimeout,
			AcquireTimeout:   DefaultAcquireTimeout,
			HealthInterval:   DefaultHealthInterval,
			FailureThreshold: DefaultFailureThreshold,
			ReconnectMin:     DefaultReconnectMin,
			ReconnectMax:     DefaultReconnectMax,
			RetryAttempts:    DefaultRetryAttempts,
		},
		Fallback: FallbackSection{
			Enabled:       true,
			SweepInterval: DefaultSweepInterval,
		},
		TTL: TTLSection{
			ApprovalRetention: DefaultApprovalRetention,
			Metric:            DefaultMetricTTL,
		},
		Lock: LockSection{
			Wait:          DefaultLockWait,
			RetryInterval: DefaultLockRetryInterval,
		},
		Codec: CodecSection{
			MaxPayloadBytes: DefaultMaxPayloadBytes,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
