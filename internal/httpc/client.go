// Package httpc provides HTTP clients with sensible defaults for vendor APIs.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// DialContextFunc dials a network connection.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewClient creates an HTTP client with the given overall timeout.
// A zero timeout leaves the client without a deadline, which streaming
// callers rely on.
func NewClient(timeout time.Duration) *http.Client {
	return newClient(timeout, defaultDialer().DialContext)
}

// NewProxiedClient creates a client that dials through a SOCKS5 proxy at
// socksAddr. An empty address returns a direct client.
func NewProxiedClient(timeout time.Duration, socksAddr string) (*http.Client, error) {
	if socksAddr == "" {
		return NewClient(timeout), nil
	}
	dial, err := SOCKSDialer(socksAddr)
	if err != nil {
		return nil, err
	}
	return newClient(timeout, dial), nil
}

// SOCKSDialer returns a context-aware dial function for a SOCKS5 proxy.
// It is shared by the HTTP clients and the websocket dialer.
func SOCKSDialer(socksAddr string) (DialContextFunc, error) {
	d, err := proxy.SOCKS5("tcp", socksAddr, nil, defaultDialer())
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", socksAddr, err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

func defaultDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
}

func newClient(timeout time.Duration, dial DialContextFunc) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dial,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
