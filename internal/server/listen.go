package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

// maxPortAttempts bounds how far Listen walks upward from the requested port.
const maxPortAttempts = 100

// Listen binds host:port. If the port is taken it tries port+1, port+2, and
// so on, keeping the successful listener open so nothing can grab the port
// between the check and Serve. The bound address is reported by URL.
func (s *Server) Listen(host string, port int) error {
	for i := 0; i < maxPortAttempts && port+i <= 65535; i++ {
		candidate := port + i
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(candidate)))
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				continue
			}
			return fmt.Errorf("listen on %s:%d: %w", host, candidate, err)
		}

		bound := candidate
		if addr, ok := ln.Addr().(*net.TCPAddr); ok {
			bound = addr.Port
		}
		s.ln = ln
		s.url = fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(bound)))
		return nil
	}
	return fmt.Errorf("no available port found starting from %d", port)
}

// URL returns the address the server is reachable at, or "" before Listen.
func (s *Server) URL() string {
	return s.url
}
