package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidEndpoint reports a host/port pair that cannot be dialed.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is the collector address a producer streams to.
type Endpoint struct {
	Host string
	Port uint16
}

// Validate rejects an empty host or a zero port.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidEndpoint)
	}
	if e.Port == 0 {
		return fmt.Errorf("%w: port must be in 1..65535", ErrInvalidEndpoint)
	}
	return nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}
