package config

// ConfigBackend abstracts where persisted config values live.
type ConfigBackend interface {
	// Get decodes the value stored under key into dst. ok is false when the
	// key is absent.
	Get(key string, dst any) (ok bool, err error)
	// Set stores v under key and persists the change.
	Set(key string, v any) error
}
