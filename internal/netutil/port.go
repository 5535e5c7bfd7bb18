// Package netutil chooses a listen address for the HTTP API.
package netutil

import (
	"fmt"
	"net"
	"strconv"
)

// SelectBindAddr returns preferred when it can be listened on. Otherwise it
// tries the next span ports on the same host; span 0 disables the fallback.
func SelectBindAddr(preferred string, span int) (string, error) {
	ok, err := IsAddrAvailable(preferred)
	if err != nil {
		return "", err
	}
	if ok {
		return preferred, nil
	}
	if span <= 0 {
		return "", fmt.Errorf("bind address in use: %s", preferred)
	}

	candidates, err := FallbackAddrs(preferred, span)
	if err != nil {
		return "", err
	}
	for _, addr := range candidates {
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no free port within %d of %s", span, preferred)
}

// FallbackAddrs lists the span addresses following addr on the same host.
func FallbackAddrs(addr string, span int) ([]string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse bind address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("parse bind address %q: invalid port", addr)
	}
	out := make([]string, 0, span)
	for p := port + 1; p <= port+span && p <= 65535; p++ {
		out = append(out, net.JoinHostPort(host, strconv.Itoa(p)))
	}
	return out, nil
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
