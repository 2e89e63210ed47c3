package pipeline

import (
	"math"
	"testing"

	"cloudpico-bridge/internal/record"
)

func TestFormatters(t *testing.T) {
	reg := newTestRegistry()
	c := NewCache(reg)
	c.setDevice(testMAC, false)
	c.SetEntity(record.FieldTempC)

	mac := record.New(record.FieldID, record.TypeRaw, 6|record.RawHexUpper|record.RawSepColon, 0)
	mac.SetRaw(testMAC)

	ip := record.New(record.FieldIP, record.TypeRaw, 4|record.RawNumber|record.RawSepDot, 0)
	ip.SetRaw([]byte{192, 168, 1, 20})

	tests := []struct {
		name string
		rec  record.Record
		want string
	}{
		{
			name: "unsigned int32",
			rec:  *ptr(record.New(record.FieldBatt, record.TypeInt32, 0, 0)).SetU32(87),
			want: "87",
		},
		{
			name: "signed int32",
			rec:  *ptr(record.New(record.FieldRSSI, record.TypeInt32, record.NumberSigned, 0)).SetI32(-71),
			want: "-71",
		},
		{
			name: "int64",
			rec:  *ptr(record.New(record.FieldFreeMemory, record.TypeInt64, 0, 0)).SetU64(1 << 40),
			want: "1099511627776",
		},
		{
			name: "float precision 1",
			rec:  *ptr(record.New(record.FieldTempC, record.TypeFloat, 1, 0)).SetFloat(23.4),
			want: "23.4",
		},
		{
			name: "float precision 3",
			rec:  *ptr(record.New(record.FieldVolt, record.TypeFloat, 3, 0)).SetFloat(2.875),
			want: "2.875",
		},
		{
			name: "double",
			rec:  *ptr(record.New(record.FieldDistance, record.TypeDouble, 2, 0)).SetDouble(1.5),
			want: "1.50",
		},
		{
			name: "hex32 with prefix",
			rec:  *ptr(record.New(record.FieldServiceDataUUID, record.TypeHex32, 4|record.HexUpper|record.HexPrefix, 0)).SetU32(0x181A),
			want: "0x181A",
		},
		{
			name: "hex32 padded lower",
			rec:  *ptr(record.New(record.FieldServiceDataUUID, record.TypeHex32, 8, 0)).SetU32(0xFE95),
			want: "0000fe95",
		},
		{name: "raw mac", rec: mac, want: "A4:C1:38:01:02:03"},
		{name: "raw ip", rec: ip, want: "192.168.1.20"},
		{name: "raw empty chunk", rec: record.New(record.FieldServiceData, record.TypeRaw, record.RawHexLower, 0), want: ""},
		{
			name: "string ref",
			rec:  *ptr(record.New(record.FieldModel, record.TypeString, record.StringRef, 0)).SetRefs(reg.Intern(`LY"WS`), 0),
			want: `LY\"WS`,
		},
		{
			name: "string mac id with entity",
			rec:  record.New(record.FieldUniqueID, record.TypeString, record.StringMACID|record.String1EntityField, 0),
			want: "a4c138010203_tempc",
		},
		{
			name: "string device id upper",
			rec:  record.New(record.FieldName, record.TypeString, record.StringDeviceID|record.CaseUpper, 0),
			want: "ATC_010203",
		},
		{
			name: "string smart case",
			rec:  record.New(record.FieldName, record.TypeString, record.StringLocalField|record.CaseSmart, uint8(record.FieldUptimeS)),
			want: "Uptime s",
		},
		{
			name: "string format",
			rec:  *ptr(record.New(record.FieldValueTemplate, record.TypeString, record.StringFmtRef|record.String1EntityField, 0)).SetRefs(reg.Intern(valueTemplate), 0),
			want: "{{ value_json.tempc | is_defined }}",
		},
		{
			name: "state topic",
			rec:  record.New(record.FieldStateTopic, record.TypeTopic, record.TopicState|record.SubjectBT, 0),
			want: "home/bridge/BTtoMQTT/ATC_010203",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.rec, c); got != tt.want {
				t.Errorf("render = %q, want %q", got, tt.want)
			}
		})
	}
}

func ptr(r record.Record) *record.Record { return &r }

func TestFormatFloat_RejectsNaN(t *testing.T) {
	rec := record.New(record.FieldTempC, record.TypeFloat, 1, 0)
	rec.SetFloat(float32(math.NaN()))

	var w Writer
	if err := formatFloat(&w, &rec, nil); err == nil {
		t.Fatalf("formatFloat(NaN) error = nil, want error")
	}
}

func TestFormatDevice(t *testing.T) {
	reg := newTestRegistry()
	c := NewCache(reg)
	c.setDevice(testMAC, false)

	rec := record.New(record.FieldDevice, record.TypeDevice,
		record.DeviceInfo(record.DeviceSourceName, record.DeviceSourceModel, record.DeviceIdentifiers|record.DeviceConnections), 0)
	rec.SetRefs(reg.Intern("MiJia "), reg.Intern("LYWSD03MMC"))

	got := render(t, rec, c)
	want := `"identifiers":["a4c138010203","ATC_010203"],` +
		`"connections":[["mac","a4:c1:38:01:02:03"]],` +
		`"via_device":"RPi_AABBCC",` +
		`"name":"MiJia ATC_010203","model":"LYWSD03MMC"`
	if got != want {
		t.Errorf("formatDevice =\n%s\nwant\n%s", got, want)
	}

	c.UseHost()
	host := record.New(record.FieldDevice, record.TypeDevice, record.DeviceInfo(record.DeviceSourceName, 0, record.DeviceIdentifiers), 0)
	host.SetRefs(reg.Intern("bridge"), 0)
	got = render(t, host, c)
	want = `"identifiers":["b827ebaabbcc","RPi_AABBCC"],"name":"bridge"`
	if got != want {
		t.Errorf("formatDevice(host) = %s, want %s", got, want)
	}
}

func TestFormatTopic_NeedsDevice(t *testing.T) {
	c := NewCache(newTestRegistry())
	rec := record.New(record.FieldTopic, record.TypeTopic, record.TopicState|record.SubjectBT, 0)

	var w Writer
	if err := formatTopic(&w, &rec, c); err != ErrNoDevice {
		t.Errorf("formatTopic error = %v, want %v", err, ErrNoDevice)
	}
}
