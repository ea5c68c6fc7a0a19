package ref

import "fmt"

// ConfigError reports malformed model or wiring data. It is fatal at
// construction time: nothing built from the offending input is usable.
type ConfigError struct {
	Subject string // identifier, reference, conduit, port, ...
	Value   string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Subject, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
