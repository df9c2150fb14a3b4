//go:build !linux

package statsd

import (
	"fmt"
	"net"
)

func listenConfig(reusePort bool) (net.ListenConfig, error) {
	if reusePort {
		return net.ListenConfig{}, fmt.Errorf("reuse_port requires Linux")
	}

	return net.ListenConfig{}, nil
}
