// Package pipeline turns records drained from ring buffers into MQTT messages.
//
// A message is a run of records ending with a close-message flag. The consumer
// feeds each record to a Composer that renders the JSON body and the topic into
// a single fixed buffer, while a Cache carries per-message context such as the
// device identity. Generator records are expanded lazily through a Feeder.
package pipeline

import (
	"sync"

	"cloudpico-bridge/internal/record"
)

// DeviceInfo describes a device whose identity does not come from a radio
// address seen in the current message, typically the host itself.
type DeviceInfo struct {
	Name         string
	Model        string
	Manufacturer string
	SWVersion    string
	MAC          []byte
}

// Host is the bridge's own identity.
type Host struct {
	// Name is the topic segment identifying this bridge.
	Name   string
	Device DeviceInfo
}

// Generator expands one generator record into records written to dst.
type Generator func(dst record.Allocator, gen *record.Record, c *Cache)

// Registry resolves the opaque references stored in records. Each kind of
// reference has its own namespace; index 0 is never issued.
type Registry struct {
	host     Host
	hostID   DeviceIdentity
	hostRef  record.Ref
	mu       sync.RWMutex
	strings  []string
	interned map[string]record.Ref
	gens     []Generator
	entities [][]Entity
	devices  []DeviceInfo
}

func NewRegistry(host Host) *Registry {
	r := &Registry{
		host:     host,
		hostID:   NewIdentity(host.Device.MAC),
		strings:  []string{""},
		interned: map[string]record.Ref{"": 0},
		gens:     []Generator{nil},
		entities: [][]Entity{nil},
		devices:  []DeviceInfo{{}},
	}
	r.hostRef = r.AddDevice(host.Device)
	return r
}

func (r *Registry) Host() Host { return r.host }

// HostIdentity returns the derived identity of the bridge itself.
func (r *Registry) HostIdentity() DeviceIdentity { return r.hostID }

// HostRef returns the device reference of the bridge itself.
func (r *Registry) HostRef() record.Ref { return r.hostRef }

// Intern returns the reference for s, adding it on first use.
func (r *Registry) Intern(s string) record.Ref {
	r.mu.RLock()
	ref, ok := r.interned[s]
	r.mu.RUnlock()
	if ok {
		return ref
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.interned[s]; ok {
		return ref
	}
	ref = record.Ref(len(r.strings))
	r.strings = append(r.strings, s)
	r.interned[s] = ref
	return ref
}

// String resolves a string reference. Unknown references resolve to "".
func (r *Registry) String(ref record.Ref) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(ref) >= len(r.strings) {
		return ""
	}
	return r.strings[ref]
}

func (r *Registry) AddGenerator(g Generator) record.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens = append(r.gens, g)
	return record.Ref(len(r.gens) - 1)
}

func (r *Registry) Generator(ref record.Ref) Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(ref) >= len(r.gens) {
		return nil
	}
	return r.gens[ref]
}

// AddEntities registers a discovery entity list.
func (r *Registry) AddEntities(list ...Entity) record.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, list)
	return record.Ref(len(r.entities) - 1)
}

func (r *Registry) Entities(ref record.Ref) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(ref) >= len(r.entities) {
		return nil
	}
	return r.entities[ref]
}

func (r *Registry) AddDevice(d DeviceInfo) record.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, d)
	return record.Ref(len(r.devices) - 1)
}

func (r *Registry) Device(ref record.Ref) (DeviceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ref == 0 || int(ref) >= len(r.devices) {
		return DeviceInfo{}, false
	}
	return r.devices[ref], true
}
