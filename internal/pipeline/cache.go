package pipeline

import "cloudpico-bridge/internal/record"

// Cache carries context between the records of one message: the open array
// or object, up to two stashed blocks, the device identity and the discovery
// entity currently being generated.
type Cache struct {
	reg *Registry

	head     record.Record
	headOpen bool

	block1, block2       record.Record
	hasBlock1, hasBlock2 bool

	device    DeviceIdentity
	hasDevice bool
	isHost    bool

	entity          record.Field
	generatorActive bool

	derivations int
}

func NewCache(reg *Registry) *Cache {
	return &Cache{reg: reg}
}

func (c *Cache) Registry() *Registry { return c.reg }

// Apply executes the cache command carried in rec.Extra.
func (c *Cache) Apply(rec *record.Record) {
	switch record.CacheCmd(rec.Extra & record.CacheMask) {
	case record.CacheBlock1:
		c.block1, c.hasBlock1 = *rec, true
	case record.CacheBlock2:
		c.block2, c.hasBlock2 = *rec, true
	case record.CacheDeviceMAC48:
		mac := rec.MAC()
		c.setDevice(mac[:6], false)
	case record.CacheDeviceMAC64:
		mac := rec.MAC()
		c.setDevice(mac[:], false)
	case record.CacheDeviceHost:
		if info, ok := c.reg.Device(rec.Ref(0)); ok {
			c.setDevice(info.MAC, c.reg.HostIdentity().Matches(info.MAC))
		}
	case record.CacheDeviceMainHost:
		c.UseHost()
	}
}

// UseHost makes the bridge itself the message's device.
func (c *Cache) UseHost() {
	c.device = c.reg.HostIdentity()
	c.hasDevice = true
	c.isHost = true
}

func (c *Cache) setDevice(addr []byte, host bool) {
	if c.hasDevice && c.device.Matches(addr) {
		c.isHost = host
		return
	}
	c.device = NewIdentity(addr)
	c.hasDevice = true
	c.isHost = host
	c.derivations++
}

// Device returns the identity of the message's device, if one is set.
func (c *Cache) Device() (DeviceIdentity, bool) { return c.device, c.hasDevice }

// IsHost reports whether the message's device is the bridge itself.
func (c *Cache) IsHost() bool { return c.hasDevice && c.isHost }

func (c *Cache) Block1() (record.Record, bool) { return c.block1, c.hasBlock1 }

func (c *Cache) Block2() (record.Record, bool) { return c.block2, c.hasBlock2 }

// Entity is the discovery entity field the active generator is describing.
func (c *Cache) Entity() record.Field { return c.entity }

func (c *Cache) SetEntity(f record.Field) { c.entity = f }

// HeadOpen reports whether an array or object element is still open.
func (c *Cache) HeadOpen() bool { return c.headOpen }

func (c *Cache) openHead(rec *record.Record) {
	c.head, c.headOpen = *rec, true
}

func (c *Cache) closeHead() {
	c.head.Reset()
	c.headOpen = false
}

// Reset runs after every message. The open element is always dropped; blocks
// and the device identity survive while a generator is expanding so that
// each generated document can reuse them.
func (c *Cache) Reset() {
	c.closeHead()
	if c.generatorActive {
		return
	}
	c.clearContext()
}

// HardReset clears everything, including the generator state.
func (c *Cache) HardReset() {
	c.closeHead()
	c.clearContext()
	c.generatorActive = false
}

func (c *Cache) clearContext() {
	c.block1.Reset()
	c.block2.Reset()
	c.hasBlock1, c.hasBlock2 = false, false
	c.device = DeviceIdentity{}
	c.hasDevice, c.isHost = false, false
	c.entity = record.FieldNone
}
