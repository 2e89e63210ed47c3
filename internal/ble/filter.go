package ble

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filter decides which devices and vendors are forwarded. A nil Filter lets
// everything through.
//
//	allow: ["A4:C1:38:01:02:03"]
//	block: ["11:22:33:44:55:66"]
//	disabled_vendors: ["laica"]
type Filter struct {
	Allow           []string `yaml:"allow"`
	Block           []string `yaml:"block"`
	DisabledVendors []string `yaml:"disabled_vendors"`

	allow map[[6]byte]struct{}
	block map[[6]byte]struct{}
}

// LoadFilter reads a YAML filter file.
func LoadFilter(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter %q: %w", path, err)
	}
	f, err := ParseFilter(data)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", path, err)
	}
	return f, nil
}

// ParseFilter decodes and validates a YAML filter.
func ParseFilter(data []byte) (*Filter, error) {
	var f Filter
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var err error
	if f.allow, err = parseAddrs(f.Allow); err != nil {
		return nil, fmt.Errorf("allow: %w", err)
	}
	if f.block, err = parseAddrs(f.Block); err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	for i, v := range f.DisabledVendors {
		f.DisabledVendors[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return &f, nil
}

func parseAddrs(list []string) (map[[6]byte]struct{}, error) {
	out := make(map[[6]byte]struct{}, len(list))
	for _, s := range list {
		mac, err := net.ParseMAC(strings.TrimSpace(s))
		if err != nil || len(mac) != 6 {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		out[[6]byte(mac)] = struct{}{}
	}
	return out, nil
}

// Allowed reports whether packets from addr may be forwarded. A block entry
// wins over an allow entry; an empty allow list allows every address.
func (f *Filter) Allowed(addr [6]byte) bool {
	if f == nil {
		return true
	}
	if _, ok := f.block[addr]; ok {
		return false
	}
	if len(f.allow) == 0 {
		return true
	}
	_, ok := f.allow[addr]
	return ok
}

// VendorEnabled reports whether the decoder registered as name may run.
func (f *Filter) VendorEnabled(name string) bool {
	return f == nil || !slices.Contains(f.DisabledVendors, strings.ToLower(name))
}
