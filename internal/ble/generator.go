package ble

import (
	"math"

	"cloudpico-bridge/internal/pipeline"
	"cloudpico-bridge/internal/record"
)

// defaultTxPower is the calibrated 1 m RSSI assumed when a beacon does not
// advertise a usable TX power.
const defaultTxPower = -59

// Distance estimates the distance in meters from the received signal
// strength, using the android-beacon-library coefficients.
func Distance(rssi, txPower int) float64 {
	if txPower >= 0 {
		txPower = defaultTxPower
	}
	ratio := float64(rssi) / float64(txPower)
	if ratio < 1 {
		return math.Pow(ratio, 10)
	}
	return 0.42093*math.Pow(ratio, 6.9476) + 0.54992
}

// AddGeneratorRecord appends the record expanded by GenerateLink: RSSI in
// type-info, TX power in extra and the service UUID in the second slot.
func AddGeneratorRecord(dst record.Allocator, gen record.Ref, rssi int16, txPower int8, uuid uint32) {
	dst.Next(record.FieldNone, record.TypeGenerator, uint8(clampRSSI(rssi)), uint8(txPower)).
		SetU32Pair(uint32(gen), uuid)
}

func clampRSSI(rssi int16) int8 {
	switch {
	case rssi < math.MinInt8:
		return math.MinInt8
	case rssi > math.MaxInt8:
		return math.MaxInt8
	}
	return int8(rssi)
}

// GenerateLink expands the link quality fields of a BT state message: the
// colon separated id, TX power and RSSI when reported, the estimated distance
// and the service UUID.
func GenerateLink(dst record.Allocator, gen *record.Record, c *pipeline.Cache) {
	if id, ok := c.Device(); ok {
		addr := id.Address()
		dst.Next(record.FieldID, record.TypeRaw, uint8(len(addr))|record.RawHexUpper|record.RawSepColon, 0).SetRaw(addr)
	}

	txPower := int8(gen.Extra)
	rssi := int8(gen.TypeInfo)
	if txPower != NoValue {
		dst.Next(record.FieldTxPower, record.TypeInt32, record.NumberSigned, 0).SetI32(int32(txPower))
	}
	if rssi != NoValue {
		dst.Next(record.FieldRSSI, record.TypeInt32, record.NumberSigned, 0).SetI32(int32(rssi))
		dst.Next(record.FieldDistance, record.TypeFloat, 2, 0).SetFloat(float32(Distance(int(rssi), int(txPower))))
	}

	uuid := gen.U32(1)
	digits := uint8(4)
	if uuid > 0xFFFF {
		digits = 8
	}
	dst.Next(record.FieldServiceDataUUID, record.TypeHex32, digits|record.HexUpper|record.HexPrefix, 0).SetU32(uuid)
}
