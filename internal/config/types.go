package config

// EngineConfig holds the workflow engine settings, read once at engine
// construction.
type EngineConfig struct {
	// MaxRetries is the default retry count for tasks that do not set
	// their own. Range [0,10].
	MaxRetries int `json:"max_retries"`
	// RetryDelay is the default delay between retries, in seconds.
	// Range [0,60].
	RetryDelay float64 `json:"retry_delay"`
	// Timeout bounds one whole workflow run, in seconds. Range [0,3600];
	// 0 disables the bound.
	Timeout float64 `json:"timeout"`
}

// Config is the top-level configuration.
type Config struct {
	WorkflowEngine EngineConfig `json:"workflow_engine"`
	// LogLevel controls the engine logger: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
	// DatabasePath is the optional sqlite file for run reports. Empty
	// disables persistence.
	DatabasePath string `json:"database_path,omitempty"`
}
