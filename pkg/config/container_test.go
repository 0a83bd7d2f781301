package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLoopback(t *testing.T) {
	tests := []struct {
		name          string
		host          string
		containerized bool
		alias         string
		want          string
	}{
		{"remote host untouched", "db.example.com", true, "", "db.example.com"},
		{"private ip untouched", "192.168.1.100", true, "", "192.168.1.100"},
		{"localhost outside container", "localhost", false, "", "localhost"},
		{"localhost in container", "localhost", true, "", "host.docker.internal"},
		{"uppercase localhost", "LocalHost", true, "", "host.docker.internal"},
		{"ipv4 loopback", "127.0.0.1", true, "", "host.docker.internal"},
		{"other 127/8 address", "127.0.1.1", true, "", "host.docker.internal"},
		{"ipv6 loopback", "::1", true, "", "host.docker.internal"},
		{"bracketed ipv6 loopback", "[::1]", true, "", "host.docker.internal"},
		{"custom alias", "localhost", true, "host.containers.internal", "host.containers.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLoopback(tt.host, tt.containerized, tt.alias))
		})
	}
}
