package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_Fields(t *testing.T) {
	payload := AppendAD(nil, ADFlags, []byte{0x06})
	payload = AppendAD(payload, ADShortName, []byte("ATC"))
	payload = AppendAD(payload, ADManufacturer, []byte{0x01, 0x02})
	payload = AppendAD(payload, ADManufacturer, []byte{0x03})
	payload = AppendAD(payload, ADTxPower, []byte{0xF4})
	p := Packet{Payload: payload}

	assert.Equal(t, 5, p.FieldCount())
	assert.Equal(t, []byte{0x01, 0x02}, p.Field(ADManufacturer, 0))
	assert.Equal(t, []byte{0x03}, p.Field(ADManufacturer, 1))
	assert.Nil(t, p.Field(ADManufacturer, 2))
	assert.Equal(t, []byte{0x01, 0x02}, p.ManufacturerData())
	assert.Equal(t, "ATC", p.Name())
	assert.Equal(t, int8(-12), p.TxPower())
}

func TestPacket_NeverReadsPastPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		count   int
	}{
		{name: "empty", payload: nil, count: 0},
		{name: "zero length ends scan", payload: []byte{0x02, 0x01, 0x06, 0x00, 0x03, 0xFF}, count: 1},
		{name: "declared length too long", payload: []byte{0x02, 0x01, 0x06, 0x09, 0xFF, 0x01}, count: 1},
		{name: "lone length byte", payload: []byte{0x02, 0x01, 0x06, 0x05}, count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Packet{Payload: tt.payload}
			assert.Equal(t, tt.count, p.FieldCount())
			assert.Nil(t, p.ManufacturerData())
			assert.Equal(t, int8(NoValue), p.TxPower())
			assert.Empty(t, p.Name())
		})
	}
}

func TestPacket_ServiceData(t *testing.T) {
	payload := AppendAD(nil, ADServiceData16, []byte{0x95, 0xFE, 0x01, 0x02})
	payload = AppendAD(payload, ADServiceData16, []byte{0x1A, 0x18, 0x0A, 0x0B, 0x0C})
	payload = AppendAD(payload, ADServiceData32, []byte{0x78, 0x56, 0x34, 0x12, 0xEE})
	p := Packet{Payload: payload}

	assert.Equal(t, []byte{0x01, 0x02}, p.ServiceData(0xFE95, 2))
	assert.Nil(t, p.ServiceData(0xFE95, 3), "shorter than the minimum length")
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C}, p.ServiceData(0x181A, 0))
	assert.Equal(t, []byte{0xEE}, p.ServiceData(0x12345678, 1))
	assert.Nil(t, p.ServiceData(0xFCD2, 0))
}

func TestPacket_AddrPrefix(t *testing.T) {
	p := Packet{Addr: testAddr}
	assert.True(t, p.HasAddrPrefix(0xA4, 0xC1, 0x38))
	assert.False(t, p.HasAddrPrefix(0xA4, 0xC1, 0x39))
	assert.True(t, p.HasAddrPrefix())
	assert.False(t, p.HasAddrPrefix(make([]byte, 7)...))
}

func TestAppendAD(t *testing.T) {
	b := AppendAD(nil, ADName, []byte("Pico"))
	require.Len(t, b, 6)
	assert.Equal(t, []byte{0x05, ADName, 'P', 'i', 'c', 'o'}, b)
}
