package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsService = "_mqtt._tcp"

var ErrNoBroker = errors.New("no mqtt broker announced via mdns")

// DiscoverBroker browses mDNS for an MQTT broker and returns the first one
// that answers within timeout.
func DiscoverBroker(ctx context.Context, timeout time.Duration) (string, int, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", 0, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return "", 0, fmt.Errorf("mdns browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", 0, ErrNoBroker
		case e, ok := <-entries:
			if !ok {
				return "", 0, ErrNoBroker
			}
			if host, ok := brokerHost(e); ok {
				return host, e.Port, nil
			}
		}
	}
}

func brokerHost(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil || e.Port <= 0 {
		return "", false
	}
	if len(e.AddrIPv4) > 0 {
		return e.AddrIPv4[0].String(), true
	}
	if host := strings.TrimSuffix(e.HostName, "."); host != "" {
		return host, true
	}
	return "", false
}
