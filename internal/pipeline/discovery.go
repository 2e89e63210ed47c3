package pipeline

import (
	"strings"

	"cloudpico-bridge/internal/record"
)

// Category is the Home-Assistant entity category.
type Category uint8

const (
	CategoryPrimary Category = iota
	CategoryConfig
	CategoryDiagnostic
	CategorySystem
)

var categoryNames = [...]string{
	CategoryPrimary:    "",
	CategoryConfig:     "config",
	CategoryDiagnostic: "diagnostic",
	CategorySystem:     "system",
}

// UseName as a device class means "the lower-cased entity name".
const UseName = "_"

// Entity describes one Home-Assistant entity announced for a device.
type Entity struct {
	Field     record.Field
	Component uint8
	Category  Category
	// Name defaults to the field key in smart case.
	Name        string
	Unit        string
	DeviceClass string
}

var (
	EntityTempC        = Entity{Field: record.FieldTempC, Name: "Temperature", Unit: "°C", DeviceClass: UseName}
	EntityHum          = Entity{Field: record.FieldHum, Name: "Humidity", Unit: "%", DeviceClass: UseName}
	EntityPressure     = Entity{Field: record.FieldPressure, Name: "Pressure", Unit: "hPa", DeviceClass: UseName}
	EntityBatt         = Entity{Field: record.FieldBatt, Category: CategoryDiagnostic, Name: "Battery", Unit: "%", DeviceClass: UseName}
	EntityVolt         = Entity{Field: record.FieldVolt, Category: CategoryDiagnostic, Name: "Volt", Unit: "V", DeviceClass: "voltage"}
	EntityWeight       = Entity{Field: record.FieldWeight, Name: "Weight", Unit: "kg", DeviceClass: UseName}
	EntityUptimeS      = Entity{Field: record.FieldUptimeS, Category: CategoryDiagnostic, Name: "Uptime_S", Unit: "s", DeviceClass: "duration"}
	EntityUptimeD      = Entity{Field: record.FieldUptimeD, Category: CategoryDiagnostic, Name: "Uptime_D", Unit: "d", DeviceClass: "duration"}
	EntityFreeMemory   = Entity{Field: record.FieldFreeMemory, Category: CategoryDiagnostic, Name: "Free_Memory", Unit: "B", DeviceClass: "data_size"}
	EntityConnectivity = Entity{Field: record.FieldConnectivity, Component: record.ComponentBinarySensor, Category: CategoryDiagnostic, Name: "Connectivity", DeviceClass: UseName}
	EntityBTScanned    = Entity{Field: record.FieldBTScanned, Category: CategoryDiagnostic, Name: "BT_Scanned", Unit: "Hz", DeviceClass: "frequency"}
	EntityBTForwarded  = Entity{Field: record.FieldBTForwarded, Category: CategoryDiagnostic, Name: "BT_Forwarded", Unit: "Hz", DeviceClass: "frequency"}
	EntityDiscovery    = Entity{Field: record.FieldDiscoveryReset, Component: record.ComponentButton, Category: CategoryConfig, Name: "Discovery_Reset"}
)

const valueTemplate = "{{ value_json.%s | is_defined }}"

// Announce describes a discovery request for one device.
type Announce struct {
	// Subject is the topic subject of the device's state messages.
	Subject  uint8
	Entities record.Ref
	// Device selects how the device identity is cached: CacheDeviceMAC48,
	// CacheDeviceMAC64 with Addr, CacheDeviceHost with HostRef, or
	// CacheDeviceMainHost.
	Device  record.CacheCmd
	Addr    []byte
	HostRef record.Ref

	Name         string
	Model        string
	Manufacturer string
	SWVersion    string
}

// Discovery queues Home-Assistant discovery documents as a single generator
// record and expands them at consumption time.
type Discovery struct {
	reg       *Registry
	generator record.Ref
	platform  record.Ref
	template  record.Ref
}

func NewDiscovery(reg *Registry) *Discovery {
	d := &Discovery{
		reg:      reg,
		platform: reg.Intern("mqtt"),
		template: reg.Intern(valueTemplate),
	}
	d.generator = reg.AddGenerator(d.generate)
	return d
}

// Need returns the number of records Add writes for a.
func (d *Discovery) Need(a Announce) int {
	need := 1
	if a.Device != record.CacheNone {
		need++
	}
	if a.Name != "" || a.Model != "" {
		need++
	}
	if a.Manufacturer != "" || a.SWVersion != "" {
		need++
	}
	return need
}

// Add writes the discovery request for a as one closed message. Nothing is
// written unless dst has room for all of it; the return value is the number
// of records that were missing, 0 on success.
func (d *Discovery) Add(dst record.Target, a Announce) int {
	need := d.Need(a)
	if free := dst.Free(); free < need {
		return need - free
	}

	if a.Device != record.CacheNone {
		rec := dst.Next(record.FieldNone, record.TypeNone, 0, uint8(a.Device))
		switch a.Device {
		case record.CacheDeviceMAC48:
			rec.SetMAC48(a.Addr)
		case record.CacheDeviceMAC64:
			rec.SetMAC64(a.Addr)
		case record.CacheDeviceHost:
			rec.SetRefs(a.HostRef, 0)
		}
	}
	if a.Name != "" || a.Model != "" {
		dst.Next(record.FieldNone, record.TypeNone, 0, uint8(record.CacheBlock1)).
			SetRefs(d.reg.Intern(a.Name), d.reg.Intern(a.Model))
	}
	if a.Manufacturer != "" || a.SWVersion != "" {
		dst.Next(record.FieldNone, record.TypeNone, 0, uint8(record.CacheBlock2)).
			SetRefs(d.reg.Intern(a.Manufacturer), d.reg.Intern(a.SWVersion))
	}
	dst.Next(record.FieldDiscList, record.TypeGenerator, a.Subject&record.TopicSubjectMask, 0).
		SetRefs(d.generator, a.Entities)
	dst.CloseLast()
	return 0
}

func (d *Discovery) generate(dst record.Allocator, gen *record.Record, c *Cache) {
	if _, ok := c.Device(); !ok {
		c.UseHost()
	}
	subject := gen.TypeInfo & record.TopicSubjectMask
	for _, e := range d.reg.Entities(gen.Ref(1)) {
		d.generateEntity(dst, subject, e, c)
	}
}

func (d *Discovery) generateEntity(dst record.Allocator, subject uint8, e Entity, c *Cache) {
	c.SetEntity(e.Field)

	dst.Next(record.FieldTopic, record.TypeTopic, record.TopicConfig|e.Component, 0)

	if e.Name != "" {
		dst.Next(record.FieldName, record.TypeString, record.StringRef, 0).SetRefs(d.reg.Intern(e.Name), 0)
	} else {
		dst.Next(record.FieldName, record.TypeString, record.StringEntityField|record.CaseSmart, 0)
	}

	if e.Component != record.ComponentButton {
		dst.Next(record.FieldStateTopic, record.TypeTopic, record.TopicState|subject, 0)
	}
	switch e.Component {
	case record.ComponentSwitch, record.ComponentButton:
		dst.Next(record.FieldCommandTopic, record.TypeTopic, record.TopicCommand|subject, 0)
	default:
		if e.Unit != "" {
			dst.Next(record.FieldUnit, record.TypeString, record.StringRef, 0).SetRefs(d.reg.Intern(e.Unit), 0)
		}
	}

	dst.Next(record.FieldUniqueID, record.TypeString, record.StringMACID|record.String1EntityField, 0)

	if dc := e.DeviceClass; dc != "" {
		if dc == UseName {
			dc = strings.ToLower(e.Name)
			if dc == "" {
				dc = e.Field.String()
			}
		}
		dst.Next(record.FieldDeviceClass, record.TypeString, record.StringRef, 0).SetRefs(d.reg.Intern(dc), 0)
	}
	if e.Category != CategoryPrimary && int(e.Category) < len(categoryNames) {
		dst.Next(record.FieldEntityCategory, record.TypeString, record.StringRef, 0).
			SetRefs(d.reg.Intern(categoryNames[e.Category]), 0)
	}
	if e.Component != record.ComponentButton {
		dst.Next(record.FieldValueTemplate, record.TypeString, record.StringFmtRef|record.String1EntityField, 0).
			SetRefs(d.template, 0)
	}

	b1, has1 := c.Block1()
	b2, has2 := c.Block2()
	dev := dst.Next(record.FieldDevice, record.TypeDevice,
		record.DeviceInfo(record.DeviceSourceName, record.DeviceSourceModel, record.DeviceIdentifiers|record.DeviceConnections), 0)
	if has1 {
		dev.SetRefs(b1.Ref(0), b1.Ref(1))
	}
	if has2 {
		dst.Next(record.FieldDevice, record.TypeDevice,
			record.DeviceInfo(record.DeviceSourceManufacturer, record.DeviceSourceSWVersion, 0), 0).
			SetRefs(b2.Ref(0), b2.Ref(1)).
			SetCloseComplex()
	} else {
		dev.SetCloseComplex()
	}

	dst.Next(record.FieldPlatform, record.TypeString, record.StringRef, 0).SetRefs(d.platform, 0).Close()
}
