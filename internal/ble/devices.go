package ble

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
)

// Device is what the bridge remembers about one advertiser.
type Device struct {
	Addr       [6]byte
	FirstSeen  time.Time
	lastSeen   atomic.Int64
	packets    atomic.Uint64
	discovered atomic.Bool
}

// LastSeen returns when the device was last resolved.
func (d *Device) LastSeen() time.Time { return time.Unix(0, d.lastSeen.Load()) }

// Packets returns the number of resolved packets seen from the device.
func (d *Device) Packets() uint64 { return d.packets.Load() }

// Discovered reports whether discovery was queued since the last connection.
func (d *Device) Discovered() bool { return d.discovered.Load() }

// Devices tracks advertisers by address. Discovery documents are queued once
// per device and per transport connection.
//
// The map is only ever inserted into: hashmap.Map.Del can leave its bucket
// index pointing past live keys. Forget replaces the whole map instead.
type Devices struct {
	devices atomic.Pointer[hashmap.Map[uint64, *Device]]

	mu        sync.Mutex
	readyTime time.Time
}

func NewDevices() *Devices {
	d := &Devices{}
	d.devices.Store(hashmap.New[uint64, *Device]())
	return d
}

func addrKey(addr [6]byte) uint64 {
	var k uint64
	for _, b := range addr {
		k = k<<8 | uint64(b)
	}
	return k
}

// Get returns the device with the given address.
func (d *Devices) Get(addr [6]byte) (*Device, bool) {
	return d.devices.Load().Get(addrKey(addr))
}

// Seen returns the device with the given address, creating it on first
// sight, and records the observation.
func (d *Devices) Seen(addr [6]byte, now time.Time) *Device {
	dev := d.getOrCreate(addr, now)
	dev.lastSeen.Store(now.UnixNano())
	dev.packets.Add(1)
	return dev
}

func (d *Devices) getOrCreate(addr [6]byte, now time.Time) *Device {
	m := d.devices.Load()
	dev, ok := m.Get(addrKey(addr))
	if !ok {
		dev, _ = m.GetOrInsert(addrKey(addr), &Device{Addr: addr, FirstSeen: now})
	}
	return dev
}

func (d *Devices) Len() int { return d.devices.Load().Len() }

// SetReadyTime clears every discovered flag when the transport connection
// changed, so the next packet of each device announces it again.
func (d *Devices) SetReadyTime(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.Equal(d.readyTime) {
		return false
	}
	d.readyTime = t
	d.ResetDiscovery()
	return true
}

// ResetDiscovery makes every known device announce itself again.
func (d *Devices) ResetDiscovery() {
	d.devices.Load().Range(func(_ uint64, dev *Device) bool {
		dev.discovered.Store(false)
		return true
	})
}

// Forget drops devices not seen since before and returns how many it
// dropped. A device first seen while Forget runs may be recreated by its next
// packet.
func (d *Devices) Forget(before time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.devices.Load()
	kept := hashmap.New[uint64, *Device]()
	dropped := 0
	old.Range(func(k uint64, dev *Device) bool {
		if dev.LastSeen().Before(before) {
			dropped++
		} else {
			kept.Set(k, dev)
		}
		return true
	})
	if dropped > 0 {
		d.devices.Store(kept)
	}
	return dropped
}
