package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedNoALPN,
}

// ParseProfile maps a configuration value onto a Profile. Empty means go.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileGo, nil
	}
	if p == ProfileGo {
		return p, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
	return p, nil
}

// Options tunes the transport built by Transport.
type Options struct {
	// Proxy, when set, becomes the transport's Proxy func.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks. Only tests against
	// self-signed servers set it.
	InsecureSkipVerify bool
}

// Transport returns an http.RoundTripper presenting the TLS ClientHello of
// profile p. ProfileGo yields a plain clone of http.DefaultTransport.
//
// uTLS connections are driven by http.Transport over HTTP/1.1, so browser
// profiles advertise only http/1.1 in ALPN and the random profile sends no
// ALPN at all.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newUConn(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, p, helloID)
		if err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: %w", err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake with %s failed: %w", host, err)
		}
		if proto := uConn.ConnectionState().NegotiatedProtocol; proto == "h2" {
			_ = uConn.Close()
			return nil, fmt.Errorf("fingerprint: %s negotiated h2, which profile %q cannot speak over this transport", host, p)
		}

		return uConn, nil
	}

	return transport, nil
}

// newUConn builds the profile's ClientHello with ALPN restricted to
// http/1.1. Everything else in the hello matches the browser.
func newUConn(conn net.Conn, cfg *utls.Config, p Profile, helloID utls.ClientHelloID) (*utls.UConn, error) {
	if p == ProfileRandom {
		return utls.UClient(conn, cfg, helloID), nil
	}

	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p, err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("profile %q: %w", p, err)
	}
	return uConn, nil
}
