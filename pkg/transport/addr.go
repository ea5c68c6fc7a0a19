package transport

import (
	"net"
	"strconv"
)

// ExpandAddr turns a bound address into dialable host:port strings. A
// wildcard host is replaced by the host's interface addresses, non-loopback
// before loopback and IPv4 before IPv6. A "::" wildcard is dual-stack and
// expands to both families.
func ExpandAddr(addr net.Addr) []string {
	var ip net.IP
	var port int
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip, port = a.IP, a.Port
	case *net.UDPAddr:
		ip, port = a.IP, a.Port
	default:
		return []string{addr.String()}
	}
	p := strconv.Itoa(port)
	if ip != nil && !ip.IsUnspecified() {
		return []string{net.JoinHostPort(ip.String(), p)}
	}
	v6 := ip == nil || ip.To4() == nil

	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{net.JoinHostPort("127.0.0.1", p)}
	}
	// non-loopback v4, non-loopback v6, loopback v4, loopback v6
	var buckets [4][]string
	for _, ia := range ifAddrs {
		ipn, ok := ia.(*net.IPNet)
		if !ok || ipn.IP.IsLinkLocalUnicast() {
			continue
		}
		is4 := ipn.IP.To4() != nil
		if !is4 && !v6 {
			continue
		}
		b := 0
		if !is4 {
			b = 1
		}
		if ipn.IP.IsLoopback() {
			b += 2
		}
		buckets[b] = append(buckets[b], net.JoinHostPort(ipn.IP.String(), p))
	}
	var out []string
	for _, b := range buckets {
		out = append(out, b...)
	}
	if len(out) == 0 {
		out = []string{net.JoinHostPort("127.0.0.1", p)}
	}
	return out
}
