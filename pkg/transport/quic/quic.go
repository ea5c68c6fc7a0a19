// Package quic carries pulls over QUIC, one bidirectional stream per
// connection, framed like tcp.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

const alpn = "muscle3-po"

// Transport listens with an ephemeral self-signed certificate. The wire
// protocol is not authenticated, so clients do not verify it.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("quic: certificate: %w", err)
	}
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{
			KeepAlivePeriod: 15 * time.Second,
			MaxIdleTimeout:  time.Minute,
		},
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = ":0"
	}
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan transport.Conn), closeCh: make(chan struct{})}
	go ql.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = ql.Close()
		case <-ql.closeCh:
		}
	}()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return nil, err
	}
	return transport.NewStreamConn(&streamCloser{Stream: st, conn: c}, c.RemoteAddr()), nil
}

type listener struct {
	l         *quicgo.Listener
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr      { return l.l.Addr() }
func (l *listener) Addresses() []string { return transport.ExpandAddr(l.l.Addr()) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrListenerClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *listener) acceptLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.closeCh
		cancel()
	}()
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			_ = l.Close()
			return
		}
		// the client's stream only appears once it has sent its first frame
		go func() {
			st, err := c.AcceptStream(ctx)
			if err != nil {
				zap.L().Debug("quic connection without stream", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
				_ = c.CloseWithError(0, "")
				return
			}
			conn := transport.NewStreamConn(&streamCloser{Stream: st, conn: c}, c.RemoteAddr())
			select {
			case l.newCh <- conn:
			case <-l.closeCh:
				_ = conn.Close()
			}
		}()
	}
}

// streamCloser closes the whole QUIC connection along with its stream.
type streamCloser struct {
	quicgo.Stream
	conn quicgo.Connection
}

func (s *streamCloser) Close() error {
	s.Stream.CancelRead(0)
	_ = s.Stream.Close()
	return s.conn.CloseWithError(0, "")
}

// selfSignedCert generates a short-lived self-signed certificate.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
