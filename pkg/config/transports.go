package config

// TransportConfig enables one transport kind and the addresses its server
// listens on. An empty listen list binds one server to an available address.
//
//	transports:
//	  - kind: tcp
//	    listen: [":9000"]
//	  - kind: quic
//	  - kind: winpipe
//	    listen: ["\\\\.\\pipe\\muscle-macro"]
type TransportConfig struct {
	Kind   string   `mapstructure:"kind"`
	Listen []string `mapstructure:"listen"`
}

// Kinds lists the configured transport kinds in order.
func Kinds(ts []TransportConfig) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Kind
	}
	return out
}
