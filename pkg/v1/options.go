package v1

import "log/slog"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope    string
	modelURL string
	backend  string
	topK     int
	logger   *slog.Logger
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithModelURL overrides the configured model server.
func WithModelURL(url string) Option {
	return func(c *clientConfig) {
		c.modelURL = url
	}
}

// WithBackend overrides the configured cache backend ("badger" or "sqlite").
func WithBackend(backend string) Option {
	return func(c *clientConfig) {
		c.backend = backend
	}
}

// WithTopK sets the default number of search results.
func WithTopK(k int) Option {
	return func(c *clientConfig) {
		c.topK = k
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}
