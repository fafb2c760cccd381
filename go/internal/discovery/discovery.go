// Package discovery advertises the relay on the local network over mDNS and
// lets peers find it without a configured URL.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	domain   = "local."
	pathKey  = "path="
	wsScheme = "ws"
)

// ErrNotFound is returned when browsing ends without a relay answer.
var ErrNotFound = errors.New("no relay found on the local network")

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the relay's port under service. instance defaults to
// a name derived from the hostname.
func Advertise(instance, service string, port int, path string) (*Advertisement, error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("fakemouse-%s", host)
	}

	server, err := zeroconf.Register(instance, service, domain, port, []string{pathKey + path}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service %s: %w", service, err)
	}

	log.Info().
		Str("instance", instance).
		Str("service", service).
		Int("port", port).
		Msg("mDNS service registered")
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Resolve browses for service until the first relay answers or ctx ends and
// returns its channel URL.
func Resolve(ctx context.Context, service string) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("initialize mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(browseCtx, service, domain, entries); err != nil {
		return "", fmt.Errorf("browse for %s: %w", service, err)
	}

	for {
		select {
		case <-browseCtx.Done():
			return "", ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if url := entryURL(entry); url != "" {
				log.Info().Str("instance", entry.Instance).Str("url", url).Msg("mDNS discovered relay")
				return url, nil
			}
		}
	}
}

func entryURL(entry *zeroconf.ServiceEntry) string {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return ""
	}

	path := "/ws"
	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, pathKey) {
			path = strings.TrimPrefix(txt, pathKey)
		}
	}
	return fmt.Sprintf("%s://%s%s", wsScheme, net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)), path)
}
