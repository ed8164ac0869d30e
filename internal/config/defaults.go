package config

// DefaultConfig returns the built-in defaults: 3 retries, 2 seconds
// between retries, 10 minute run timeout.
func DefaultConfig() *Config {
	return &Config{
		WorkflowEngine: EngineConfig{
			MaxRetries: 3,
			RetryDelay: 2,
			Timeout:    600,
		},
		LogLevel: "info",
	}
}
