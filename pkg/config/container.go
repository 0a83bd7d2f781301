package config

import (
	"net"
	"os"
	"strings"
	"sync"
)

const (
	// HostAliasEnv names the host machine as seen from inside a container.
	HostAliasEnv     = "PROFILER_HOST_ALIAS"
	defaultHostAlias = "host.docker.internal"
)

// Files container runtimes create at the filesystem root (Docker, Podman).
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

var inContainer = sync.OnceValue(func() bool {
	for _, marker := range containerMarkers {
		if _, err := os.Stat(marker); err == nil {
			return true
		}
	}
	return false
})

// ResolveLoopbackHost returns the host alias for loopback datasource hosts
// when the profiler runs in a container. Other hosts are returned unchanged.
func ResolveLoopbackHost(host string) string {
	return resolveLoopback(host, inContainer(), os.Getenv(HostAliasEnv))
}

func resolveLoopback(host string, containerized bool, alias string) string {
	if !containerized || !isLoopback(host) {
		return host
	}
	if alias == "" {
		return defaultHostAlias
	}
	return alias
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
