// Package ble turns BLE advertisements into records.
//
// A Resolver holds an ordered list of vendor decoders. The first decoder that
// recognizes a packet writes a state message into the buffer, possibly
// preceded by a discovery request for the device.
package ble

import (
	"time"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
)

// Match is the payload a decoder recognized.
type Match struct {
	// UUID is the service data UUID, 0 for manufacturer data.
	UUID uint32
	// Data is forwarded as raw chunks after the decoded fields.
	Data  []byte
	Field record.Field
}

// Matcher selects the payload a decoder works on.
type Matcher func(p *Packet) (Match, bool)

// Decoder writes the state message for a matched packet. It returns Unknown
// when the payload does not validate and SmallBuffer when dst cannot hold the
// discovery request and state message together; in both cases nothing is
// written.
type Decoder func(r *Resolver, dst record.Target, p *Packet, m Match) Result

type vendor struct {
	name   string
	match  Matcher
	decode Decoder
}

// Resolver is the ordered vendor registry.
type Resolver struct {
	reg     *pipeline.Registry
	disc    *pipeline.Discovery
	devices *Devices
	filter  *Filter
	vendors []vendor
	now     func() time.Time
}

func NewResolver(reg *pipeline.Registry, disc *pipeline.Discovery, devices *Devices, filter *Filter) *Resolver {
	return &Resolver{
		reg:     reg,
		disc:    disc,
		devices: devices,
		filter:  filter,
		now:     time.Now,
	}
}

// Register appends a decoder. Decoders are tried in registration order.
func (r *Resolver) Register(name string, match Matcher, decode Decoder) {
	r.vendors = append(r.vendors, vendor{name: name, match: match, decode: decode})
}

// Vendors returns the registered vendor names in order.
func (r *Resolver) Vendors() []string {
	out := make([]string, len(r.vendors))
	for i, v := range r.vendors {
		out[i] = v.name
	}
	return out
}

// Resolve runs the first decoder whose matcher accepts p. Resolution stops at
// the first result that is not Unknown.
func (r *Resolver) Resolve(dst record.Target, p *Packet) (Result, Match, string) {
	for _, v := range r.vendors {
		m, ok := v.match(p)
		if !ok {
			continue
		}
		if !r.filter.VendorEnabled(v.name) || !r.filter.Allowed(p.Addr) {
			return Disabled, m, v.name
		}
		res := v.decode(r, dst, p, m)
		if res == Unknown {
			continue
		}
		if res == Resolved {
			r.devices.Seen(p.Addr, r.now())
		}
		return res, m, v.name
	}
	return Unknown, Match{}, ""
}

// Intern returns the registry reference of s.
func (r *Resolver) Intern(s string) record.Ref { return r.reg.Intern(s) }

// Entities registers an entity list and returns its reference.
func (r *Resolver) Entities(list ...pipeline.Entity) record.Ref {
	return r.reg.AddEntities(list...)
}

// Reserve makes sure dst holds the whole output for p before anything is
// written: the discovery request described by a, unless the device was already
// announced on the current connection or a is nil, plus state more records.
// It returns false, writing nothing, when that does not fit. Otherwise the
// discovery request is queued and the caller may write its state records.
func (r *Resolver) Reserve(dst record.Target, p *Packet, a *pipeline.Announce, state int) bool {
	need := state
	var dev *Device
	if a != nil && r.disc != nil {
		dev = r.devices.getOrCreate(p.Addr, r.now())
		if dev.Discovered() {
			dev = nil
		} else {
			a.Subject = record.SubjectBT
			a.Device = record.CacheDeviceMAC48
			a.Addr = p.Addr[:]
			need += r.disc.Need(*a)
		}
	}
	if dst.Free() < need {
		return false
	}
	if dev != nil {
		if r.disc.Add(dst, *a) != 0 {
			return false
		}
		dev.discovered.Store(true)
	}
	return true
}

// ServiceDataMatcher matches service data keyed by uuid with at least minLen
// value bytes.
func ServiceDataMatcher(uuid uint32, minLen int) Matcher {
	return func(p *Packet) (Match, bool) {
		sd := p.ServiceData(uuid, minLen)
		if sd == nil {
			return Match{}, false
		}
		return Match{UUID: uuid, Data: sd, Field: record.FieldServiceData}, true
	}
}

// ManufacturerMatcher matches manufacturer data starting with prefix.
func ManufacturerMatcher(prefix ...byte) Matcher {
	return func(p *Packet) (Match, bool) {
		md := p.ManufacturerData()
		if len(md) < len(prefix) {
			return Match{}, false
		}
		for i, b := range prefix {
			if md[i] != b {
				return Match{}, false
			}
		}
		return Match{Data: md, Field: record.FieldManufacturerData}, true
	}
}
