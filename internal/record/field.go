package record

// Field identifies the JSON key a record is rendered under.
type Field uint8

const (
	FieldNone Field = iota
	// FieldCont continues the previous element's value.
	FieldCont
	FieldTopic
	FieldDiscElem
	FieldDiscList

	FieldID
	FieldName
	FieldModel
	FieldManufacturer
	FieldDevice
	FieldPlatform
	FieldStateTopic
	FieldCommandTopic
	FieldUnit
	FieldUniqueID
	FieldDeviceClass
	FieldEntityCategory
	FieldValueTemplate

	FieldTempC
	FieldHum
	FieldBatt
	FieldVolt
	FieldWeight
	FieldPressure
	FieldRSSI
	FieldTxPower
	FieldDistance
	FieldServiceData
	FieldServiceDataUUID
	FieldManufacturerData
	FieldReadingID

	FieldUptimeS
	FieldUptimeD
	FieldFreeMemory
	FieldIP
	FieldBTScanned
	FieldBTForwarded
	FieldConnectivity
	FieldDiscoveryReset

	FieldCount
)

var fieldNames = [FieldCount]string{
	FieldNone:     "",
	FieldCont:     "_cont",
	FieldTopic:    "_topic",
	FieldDiscElem: "_discElem",
	FieldDiscList: "_discList",

	FieldID:             "id",
	FieldName:           "name",
	FieldModel:          "model",
	FieldManufacturer:   "manufacturer",
	FieldDevice:         "device",
	FieldPlatform:       "platform",
	FieldStateTopic:     "state_topic",
	FieldCommandTopic:   "command_topic",
	FieldUnit:           "unit_of_measurement",
	FieldUniqueID:       "unique_id",
	FieldDeviceClass:    "device_class",
	FieldEntityCategory: "entity_category",
	FieldValueTemplate:  "value_template",

	FieldTempC:            "tempc",
	FieldHum:              "hum",
	FieldBatt:             "batt",
	FieldVolt:             "volt",
	FieldWeight:           "weight",
	FieldPressure:         "pressure",
	FieldRSSI:             "rssi",
	FieldTxPower:          "txpower",
	FieldDistance:         "distance",
	FieldServiceData:      "servicedata",
	FieldServiceDataUUID:  "servicedatauuid",
	FieldManufacturerData: "manufacturerdata",
	FieldReadingID:        "reading_id",

	FieldUptimeS:        "uptime_s",
	FieldUptimeD:        "uptime_d",
	FieldFreeMemory:     "free_memory",
	FieldIP:             "ip",
	FieldBTScanned:      "bt_scanned",
	FieldBTForwarded:    "bt_forwarded",
	FieldConnectivity:   "connectivity",
	FieldDiscoveryReset: "discovery_reset",
}

// String returns the JSON key of f.
func (f Field) String() string {
	if f < FieldCount {
		return fieldNames[f]
	}
	return ""
}

// Pseudo reports whether f is an internal marker that never becomes a key.
func (f Field) Pseudo() bool { return f <= FieldDiscList }

// ParseField maps a JSON key back to its field id.
func ParseField(name string) (Field, bool) {
	for f := FieldID; f < FieldCount; f++ {
		if fieldNames[f] == name {
			return f, true
		}
	}
	return FieldNone, false
}
