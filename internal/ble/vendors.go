package ble

import (
	"encoding/binary"
	"math"
	"sync"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
)

// Vendor names as used by Register and the filter's disabled_vendors list.
const (
	VendorMiBacon   = "mibacon"
	VendorPVVX      = "pvvx"
	VendorLaica     = "laica"
	VendorCloudPico = "cloudpico"
)

// RegisterDefaults registers every built-in decoder in resolution order.
func RegisterDefaults(r *Resolver) {
	mi := &miBacon{list: r.Entities(pipeline.EntityBatt, pipeline.EntityHum, pipeline.EntityTempC)}
	r.Register(VendorMiBacon, ServiceDataMatcher(uuidMiBacon, miBaconMinLen), mi.decode)

	tl := &pvvx{list: r.Entities(pipeline.EntityVolt, pipeline.EntityBatt, pipeline.EntityHum, pipeline.EntityTempC)}
	r.Register(VendorPVVX, pvvxMatcher, tl.decode)

	lc := &laica{list: r.Entities(pipeline.EntityWeight)}
	r.Register(VendorLaica, laicaMatcher, lc.decode)

	cp := &cloudPico{
		list: r.Entities(pipeline.EntityTempC, pipeline.EntityHum, pipeline.EntityPressure),
		seen: make(map[[6]byte]map[uint32]struct{}),
	}
	r.Register(VendorCloudPico, ManufacturerMatcher(cloudPicoPrefix...), cp.decode)
}

// signedLE reads a little-endian signed value of 1, 2 or 4 bytes; other
// sizes read as 0.
func signedLE(b []byte) int32 {
	switch len(b) {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func addModel(r *Resolver, dst record.Target, model string) {
	dst.Next(record.FieldModel, record.TypeString, record.StringRef, 0).SetRefs(r.Intern(model), 0)
}

func addTopic(dst record.Target, p *Packet) {
	dst.Next(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectBT, uint8(record.CacheDeviceMAC48)).
		SetMAC48(p.Addr[:])
}

// Xiaomi "Mi Bacon" frames on service data 0xFE95.
const (
	uuidMiBacon   = 0xFE95
	miBaconMinLen = 14
	miBaconTypeHT = 0x01AA
	miBaconNeed   = 3
)

type miBacon struct {
	list record.Ref
}

func (d *miBacon) decode(r *Resolver, dst record.Target, p *Packet, m Match) Result {
	sd := m.Data
	if len(sd) < miBaconMinLen || len(sd) < miBaconMinLen+int(sd[13]) {
		return Unknown
	}
	vlen := int(sd[13])
	val := sd[miBaconMinLen : miBaconMinLen+vlen]
	kind := sd[11]
	switch kind {
	case 4, 6, 10:
	case 13:
		if vlen != 4 {
			return Unknown
		}
	default:
		return Unknown
	}

	model := "Unknown"
	var announce *pipeline.Announce
	if binary.LittleEndian.Uint16(sd[2:4]) == miBaconTypeHT {
		model = "LYWSDCGQ"
		announce = &pipeline.Announce{
			Entities:     d.list,
			Name:         "MiJia ",
			Model:        model,
			Manufacturer: "Xiaomi, Qingping",
		}
	}
	if !r.Reserve(dst, p, announce, miBaconNeed) {
		return SmallBuffer
	}
	addTopic(dst, p)
	switch kind {
	case 4:
		dst.Next(record.FieldTempC, record.TypeFloat, 1, 0).SetFloat(float32(signedLE(val)) / 10)
	case 6:
		dst.Next(record.FieldHum, record.TypeFloat, 1, 0).SetFloat(float32(signedLE(val)) / 10)
	case 10:
		dst.Next(record.FieldBatt, record.TypeInt32, record.NumberSigned, 0).SetI32(signedLE(val))
	case 13:
		dst.Next(record.FieldTempC, record.TypeFloat, record.DoubleField|1, uint8(record.FieldHum)).
			SetFloatPair(float32(signedLE(val[0:2]))/10, float32(signedLE(val[2:4]))/10)
	}
	addModel(r, dst, model)
	return Resolved
}

// Custom pvvx/atc1441 firmware for the LYWSD03MMC on service data 0x181A.
const (
	uuidPVVX   = 0x181A
	pvvxMinLen = 15
	pvvxNeed   = 5
)

var pvvxPrefix = []byte{0xA4, 0xC1, 0x38}

func pvvxMatcher(p *Packet) (Match, bool) {
	if !p.HasAddrPrefix(pvvxPrefix...) {
		return Match{}, false
	}
	return ServiceDataMatcher(uuidPVVX, pvvxMinLen)(p)
}

type pvvx struct {
	list record.Ref
}

func (d *pvvx) decode(r *Resolver, dst record.Target, p *Packet, m Match) Result {
	sd := m.Data
	if len(sd) < pvvxMinLen {
		return Unknown
	}
	const model = "LYWSD03MMC"
	if !r.Reserve(dst, p, &pipeline.Announce{
		Entities:     d.list,
		Name:         "MiJia ",
		Model:        model,
		Manufacturer: "Xiaomi, Telink",
		SWVersion:    "pvvx",
	}, pvvxNeed) {
		return SmallBuffer
	}
	addTopic(dst, p)
	dst.Next(record.FieldTempC, record.TypeFloat, record.DoubleField|2, uint8(record.FieldHum)).
		SetFloatPair(float32(signedLE(sd[6:8]))/100, float32(signedLE(sd[8:10]))/100)
	dst.Next(record.FieldBatt, record.TypeInt32, record.NumberSigned, 0).SetI32(signedLE(sd[12:13]))
	dst.Next(record.FieldVolt, record.TypeFloat, 3, 0).SetFloat(float32(signedLE(sd[10:12])) / 1000)
	addModel(r, dst, model)
	return Resolved
}

// Laica body scales advertise as "YoHealth" with a fixed manufacturer
// signature and a big-endian weight in 0.1 kg.
const laicaName = "YoHealth"

var laicaSignature = []byte{0x02, 0xA1, 0x09, 0xFF}

const (
	laicaMinLen = 6
	laicaNeed   = 3
)

func laicaMatcher(p *Packet) (Match, bool) {
	if p.Name() != laicaName {
		return Match{}, false
	}
	m, ok := ManufacturerMatcher(laicaSignature...)(p)
	if !ok || len(m.Data) < laicaMinLen {
		return Match{}, false
	}
	return m, true
}

type laica struct {
	list record.Ref
}

func (d *laica) decode(r *Resolver, dst record.Target, p *Packet, m Match) Result {
	md := m.Data
	if len(md) < laicaMinLen {
		return Unknown
	}
	if !r.Reserve(dst, p, &pipeline.Announce{
		Entities:     d.list,
		Name:         "Laica ",
		Model:        laicaName,
		Manufacturer: "Laica",
	}, laicaNeed) {
		return SmallBuffer
	}
	weight := float32(binary.BigEndian.Uint16(md[4:6])) / 10
	addTopic(dst, p)
	dst.Next(record.FieldWeight, record.TypeFloat, 1, 0).SetFloat(weight)
	addModel(r, dst, laicaName)
	return Resolved
}

// CloudPico stations advertise manufacturer data under the test company id
// 0xFFFF: magic 01 D0, reading id uint32, then temperature, pressure and
// humidity as float32, all little-endian.
var cloudPicoPrefix = []byte{0xFF, 0xFF, 0x01, 0xD0}

const (
	cloudPicoLen        = 2 + 18
	cloudPicoMaxIDs     = 500
	cloudPicoModel      = "CloudPico"
	cloudPicoNeed       = 5
	cloudPicoReadingOff = 4
)

type cloudPico struct {
	list record.Ref

	mu   sync.Mutex
	seen map[[6]byte]map[uint32]struct{}
}

// Reading is one decoded CloudPico station frame.
type Reading struct {
	ID          uint32
	Temperature float32
	Pressure    float32
	Humidity    float32
}

// ParseCloudPico decodes a CloudPico frame from manufacturer data, company id
// included.
func ParseCloudPico(md []byte) (Reading, bool) {
	if len(md) < cloudPicoLen {
		return Reading{}, false
	}
	for i, b := range cloudPicoPrefix {
		if md[i] != b {
			return Reading{}, false
		}
	}
	f := md[cloudPicoReadingOff:]
	return Reading{
		ID:          binary.LittleEndian.Uint32(f[0:4]),
		Temperature: math.Float32frombits(binary.LittleEndian.Uint32(f[4:8])),
		Pressure:    math.Float32frombits(binary.LittleEndian.Uint32(f[8:12])),
		Humidity:    math.Float32frombits(binary.LittleEndian.Uint32(f[12:16])),
	}, true
}

// duplicate reports whether id was already forwarded for addr.
func (d *cloudPico) duplicate(addr [6]byte, id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.seen[addr]
	if ids == nil {
		ids = make(map[uint32]struct{})
		d.seen[addr] = ids
	}
	_, ok := ids[id]
	return ok
}

func (d *cloudPico) remember(addr [6]byte, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.seen[addr]
	if len(ids) >= cloudPicoMaxIDs {
		ids = make(map[uint32]struct{})
		d.seen[addr] = ids
	}
	ids[id] = struct{}{}
}

func (d *cloudPico) decode(r *Resolver, dst record.Target, p *Packet, m Match) Result {
	rd, ok := ParseCloudPico(m.Data)
	if !ok {
		return Unknown
	}
	if d.duplicate(p.Addr, rd.ID) {
		return Disabled
	}
	if !r.Reserve(dst, p, &pipeline.Announce{
		Entities:     d.list,
		Name:         "CloudPico ",
		Model:        cloudPicoModel,
		Manufacturer: "Raspberry Pi",
	}, cloudPicoNeed) {
		return SmallBuffer
	}
	addTopic(dst, p)
	dst.Next(record.FieldTempC, record.TypeFloat, record.DoubleField|2, uint8(record.FieldHum)).
		SetFloatPair(rd.Temperature, rd.Humidity)
	dst.Next(record.FieldPressure, record.TypeFloat, 1, 0).SetFloat(rd.Pressure)
	dst.Next(record.FieldReadingID, record.TypeInt32, 0, 0).SetU32(rd.ID)
	addModel(r, dst, cloudPicoModel)
	d.remember(p.Addr, rd.ID)
	return Resolved
}
