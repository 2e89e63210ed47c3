// Package sysstat publishes the bridge's own status message and its
// Home-Assistant discovery.
package sysstat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"cloudpico-bridge/internal/pipeline"
)

// Interface is the network interface the bridge is reachable on.
type Interface struct {
	Name string
	MAC  net.HardwareAddr
	IP   net.IP
}

// Source reads host statistics.
type Source interface {
	FreeMemory(ctx context.Context) (uint64, error)
	Interface(ctx context.Context) (Interface, error)
}

var ErrNoInterface = errors.New("no usable network interface")

// HostSource reads statistics of the machine the bridge runs on.
type HostSource struct {
	// InterfaceName pins the interface; empty picks the first one that is up,
	// not a loopback and has an IPv4 address.
	InterfaceName string
}

func (HostSource) FreeMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.Available, nil
}

func (s HostSource) Interface(ctx context.Context) (Interface, error) {
	list, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return Interface{}, fmt.Errorf("network interfaces: %w", err)
	}
	for _, it := range list {
		if s.InterfaceName != "" && it.Name != s.InterfaceName {
			continue
		}
		if slices.Contains(it.Flags, "loopback") || !slices.Contains(it.Flags, "up") {
			continue
		}
		mac, err := net.ParseMAC(it.HardwareAddr)
		if err != nil {
			continue
		}
		for _, a := range it.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if ip4 := ip.To4(); ip4 != nil {
				return Interface{Name: it.Name, MAC: mac, IP: ip4}, nil
			}
		}
	}
	return Interface{}, ErrNoInterface
}

// Identity describes the bridge as a Home-Assistant device.
func Identity(ctx context.Context, src Source, name, version string) (pipeline.Host, error) {
	it, err := src.Interface(ctx)
	if err != nil {
		return pipeline.Host{}, err
	}
	model := "cloudpico-bridge"
	if info, err := host.InfoWithContext(ctx); err == nil && info.Platform != "" {
		model = fmt.Sprintf("cloudpico-bridge (%s %s)", info.Platform, info.PlatformVersion)
	}
	return pipeline.Host{
		Name: name,
		Device: pipeline.DeviceInfo{
			Name:         name,
			Model:        model,
			Manufacturer: "cloudpico",
			SWVersion:    version,
			MAC:          it.MAC,
		},
	}, nil
}
