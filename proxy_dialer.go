package irc2me

import (
	"net"

	"golang.org/x/net/proxy"
)

// SOCKS5Dialer returns a Dialer that routes outbound IRC connections
// through a SOCKS5 proxy, for accounts whose network is only reachable
// that way. Grounded on kofany-go-ircevo's use of golang.org/x/net/proxy
// for the same purpose; auth may be nil for an unauthenticated proxy.
func SOCKS5Dialer(proxyAddr string, auth *proxy.Auth) (Dialer, error) {
	d, err := proxy.SOCKS5("tcp", proxyAddr, auth, proxy.Direct)
	if err != nil {
		return nil, &TransportError{Op: "socks5 dial setup", Err: err}
	}
	return socks5DialerAdapter{d}, nil
}

// socks5DialerAdapter adapts proxy.Dialer (Dial(network, addr string) (net.Conn, error))
// to this package's Dialer interface — they already share the same method
// signature, but proxy.Dialer is an external interface type and the
// gateway keeps its own Dialer so girc-style test fakes don't need to
// import golang.org/x/net/proxy.
type socks5DialerAdapter struct {
	d proxy.Dialer
}

func (a socks5DialerAdapter) Dial(network, address string) (net.Conn, error) {
	return a.d.Dial(network, address)
}
