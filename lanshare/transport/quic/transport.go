package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/lanshare/lanshare/lanshare/transport"
	q "github.com/quic-go/quic-go"
)

// closeGrace bounds how long a sender waits for the receiver to hang up
// after the stream's FIN, so buffered data is not dropped by an early close.
const closeGrace = 10 * time.Second

// ALPN identifies lanshare transfers in the QUIC handshake.
const ALPN = "lanshare/1"

var errPeerCertificate = errors.New("quic: peer did not present a lanshare certificate")

// Transport carries each transfer on one bidirectional QUIC stream.
//
// QUIC needs TLS, but LAN peers share no PKI: the listener presents a
// self-signed certificate made once per Transport and the dialer only checks
// that it is a well-formed, currently valid lanshare certificate. Secrecy of
// the file itself comes from the transfer password.
type Transport struct {
	Config *q.Config

	certOnce sync.Once
	cert     tls.Certificate
	certErr  error
}

func New() *Transport {
	return &Transport{Config: &q.Config{}}
}

func (t *Transport) serverTLS() (*tls.Config, error) {
	t.certOnce.Do(func() { t.cert, t.certErr = selfSigned(time.Now()) })
	if t.certErr != nil {
		return nil, fmt.Errorf("quic: certificate: %w", t.certErr)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{t.cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{ALPN},
	}, nil
}

func clientTLS() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{ALPN},
		// Chain verification is replaced by verifyPeer.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeer,
	}
}

// selfSigned makes a short-lived ECDSA P-256 certificate for CN "lanshare".
func selfSigned(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "lanshare"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(7 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// verifyPeer accepts exactly one certificate that is signed by its own key,
// names "lanshare" and is inside its validity window.
func verifyPeer(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) != 1 {
		return fmt.Errorf("%w: %d certificates", errPeerCertificate, len(rawCerts))
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("%w: %w", errPeerCertificate, err)
	}
	if cert.Subject.CommonName != "lanshare" {
		return fmt.Errorf("%w: subject %q", errPeerCertificate, cert.Subject.CommonName)
	}
	if now := time.Now(); now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: outside validity window", errPeerCertificate)
	}
	if err := cert.CheckSignatureFrom(cert); err != nil {
		return fmt.Errorf("%w: %w", errPeerCertificate, err)
	}
	return nil
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	tlsConf, err := t.serverTLS()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, t.Config)
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	conn, err := q.DialAddr(ctx, addr, clientTLS(), t.Config)
	if err != nil {
		return nil, err
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream failed")
		return nil, err
	}
	return &streamConn{Stream: st, conn: conn, dialer: true}, nil
}

type Listener struct {
	inner *q.Listener
}

// Accept returns the first stream of the next incoming connection.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	conn, err := l.inner.Accept(ctx)
	if err != nil {
		return nil, err
	}
	st, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no stream")
		return nil, err
	}
	return &streamConn{Stream: st, conn: conn}, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error { return l.inner.Close() }

type streamConn struct {
	q.Stream
	conn   q.Connection
	dialer bool
}

func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close finishes the stream. The dialing side sends FIN and waits for the
// accepting side to close the connection once it has read everything.
func (c *streamConn) Close() error {
	if !c.dialer {
		c.Stream.CancelRead(0)
		return c.conn.CloseWithError(0, "done")
	}
	err := c.Stream.Close()
	select {
	case <-c.conn.Context().Done():
	case <-time.After(closeGrace):
	}
	if cerr := c.conn.CloseWithError(0, "done"); err == nil {
		err = cerr
	}
	return err
}
