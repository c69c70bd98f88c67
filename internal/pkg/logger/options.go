package logger

// Option adjusts a Config before the logger is built.
type Option func(*Config)

// WithLevel sets the minimum log level.
func WithLevel(level string) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithFormat sets the encoder, "json" or "console".
func WithFormat(format string) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithOutput sets the sink, "console", "file", or "both".
func WithOutput(output string) Option {
	return func(c *Config) {
		c.Output = output
	}
}

// WithFilename sets the log file path for file output.
func WithFilename(filename string) Option {
	return func(c *Config) {
		c.File.Filename = filename
	}
}

// WithCaller toggles caller annotations.
func WithCaller(enabled bool) Option {
	return func(c *Config) {
		c.EnableCaller = enabled
	}
}

// WithStacktrace toggles stacktraces on error-level entries.
func WithStacktrace(enabled bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enabled
	}
}

// NewWithOptions builds a logger from DefaultConfig plus opts. The server
// binary configures logging from YAML instead; this path serves CLIs and
// tests that have no config file.
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Development returns a debug-level console logger.
func Development() (*Logger, error) {
	return NewWithOptions(
		WithLevel("debug"),
		WithFormat("console"),
		WithOutput("console"),
		WithCaller(true),
		WithStacktrace(true),
	)
}

// CLI returns a quiet console logger for command-line tools, warnings and
// up only.
func CLI() (*Logger, error) {
	return NewWithOptions(
		WithLevel("warn"),
		WithFormat("console"),
		WithOutput("console"),
		WithCaller(false),
		WithStacktrace(false),
	)
}
