package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandAddrConcreteHost(t *testing.T) {
	got := ExpandAddr(&net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 4000})
	assert.Equal(t, []string{"192.0.2.7:4000"}, got)
}

func TestExpandAddrWildcardV4(t *testing.T) {
	got := ExpandAddr(&net.TCPAddr{IP: net.IPv4zero, Port: 4000})
	assert.NotEmpty(t, got)
	for _, a := range got {
		host, port, err := net.SplitHostPort(a)
		assert.NoError(t, err)
		assert.Equal(t, "4000", port)
		assert.NotNil(t, net.ParseIP(host).To4(), "0.0.0.0 only expands to IPv4: %s", a)
	}
}

func TestExpandAddrNonIP(t *testing.T) {
	assert.Equal(t, []string{"po-1"}, ExpandAddr(pipeAddr("po-1")))
}

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
