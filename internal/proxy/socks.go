// Package proxy builds HTTP clients for the AI collaborators.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// Timeout bounds one collaborator round trip.
const Timeout = 120 * time.Second

// NewClient returns a client that dials through the SOCKS5 proxy at addr,
// or a direct client when addr is empty.
func NewClient(addr string) (*http.Client, error) {
	if addr == "" {
		return &http.Client{Timeout: Timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return &http.Client{
			Transport: &http.Transport{DialContext: cd.DialContext},
			Timeout:   Timeout,
		}, nil
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		},
		Timeout: Timeout,
	}, nil
}
