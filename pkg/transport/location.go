package transport

import (
	"fmt"
	"strings"
)

// Location is a parsed "scheme:addr1,addr2,..." string.
type Location struct {
	Scheme    string
	Addresses []string
}

// ParseLocation splits s at its first colon into a scheme and a
// comma-separated address list.
func ParseLocation(s string) (Location, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("location %q: missing scheme", s)
	}
	var addrs []string
	for _, a := range strings.Split(rest, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return Location{}, fmt.Errorf("location %q: no addresses", s)
	}
	return Location{Scheme: scheme, Addresses: addrs}, nil
}

func (l Location) String() string { return l.Scheme + ":" + strings.Join(l.Addresses, ",") }

// HasScheme reports whether location starts with "scheme:".
func HasScheme(location, scheme string) bool {
	return strings.HasPrefix(location, scheme+":")
}
