package pipeline

import (
	"strings"

	"cloudpico-bridge/internal/record"
)

const (
	topicRoot       = "home"
	discoveryPrefix = "homeassistant"
)

var subjectNames = [record.SubjectCount]string{
	record.SubjectSYS: "SYS",
	record.SubjectBT:  "BT",
	record.SubjectENV: "ENV",
}

var componentNames = [record.ComponentCount]string{
	record.ComponentSensor:       "sensor",
	record.ComponentBinarySensor: "binary_sensor",
	record.ComponentSwitch:       "switch",
	record.ComponentButton:       "button",
}

type stringWriter interface {
	WriteString(s string) (int, error)
}

// SubjectName returns the topic segment of a subject, or "" if unknown.
func SubjectName(subject uint8) string {
	if subject < record.SubjectCount {
		return subjectNames[subject]
	}
	return ""
}

// writeTopic renders a topic of the given kind:
//
//	state     home/<host>/<SUBJECT>toMQTT/<id>
//	config    homeassistant/<component>/<mac>_<field>/config
//	command   home/<host>/MQTTto<SUBJECT>/<id>/command/<mac>_<field>
//	retained  home/<host>/<SUBJECT>RtoMQTT/<id>
func writeTopic(w stringWriter, kind, subject uint8, host string, id DeviceIdentity, entity record.Field) error {
	switch kind {
	case record.TopicConfig:
		if subject >= record.ComponentCount {
			return ErrUnknownComponent
		}
		if entity.Pseudo() {
			return ErrNoEntity
		}
		_, _ = w.WriteString(discoveryPrefix)
		_, _ = w.WriteString("/")
		_, _ = w.WriteString(componentNames[subject])
		_, _ = w.WriteString("/")
		_, _ = w.WriteString(id.StrMAC)
		_, _ = w.WriteString("_")
		_, _ = w.WriteString(entity.String())
		_, _ = w.WriteString("/config")
		return nil
	case record.TopicState, record.TopicRetained, record.TopicCommand:
	default:
		return ErrUnknownTopic
	}

	name := SubjectName(subject)
	if name == "" {
		return ErrUnknownTopic
	}
	_, _ = w.WriteString(topicRoot)
	_, _ = w.WriteString("/")
	_, _ = w.WriteString(host)
	_, _ = w.WriteString("/")
	switch kind {
	case record.TopicState:
		_, _ = w.WriteString(name)
		_, _ = w.WriteString("toMQTT/")
	case record.TopicRetained:
		_, _ = w.WriteString(name)
		_, _ = w.WriteString("RtoMQTT/")
	case record.TopicCommand:
		if entity.Pseudo() {
			return ErrNoEntity
		}
		_, _ = w.WriteString("MQTTto")
		_, _ = w.WriteString(name)
		_, _ = w.WriteString("/")
	}
	_, _ = w.WriteString(id.StrID)
	if kind == record.TopicCommand {
		_, _ = w.WriteString("/command/")
		_, _ = w.WriteString(id.StrMAC)
		_, _ = w.WriteString("_")
		_, _ = w.WriteString(entity.String())
	}
	return nil
}

// Topic renders a topic as a string. kind is one of the record.Topic* kinds.
func Topic(kind, subject uint8, host string, id DeviceIdentity, entity record.Field) (string, error) {
	var sb strings.Builder
	if err := writeTopic(&sb, kind, subject, host, id, entity); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// CommandSubscription returns the filter matching every command addressed to
// a device of this bridge.
func CommandSubscription(host, deviceID string) string {
	return topicRoot + "/" + host + "/+/" + deviceID + "/command/#"
}

// AvailabilityTopic is where the bridge publishes "online" and its broker
// publishes the "offline" last will.
func AvailabilityTopic(host string) string {
	return topicRoot + "/" + host + "/LWT"
}

// Command is an inbound request parsed from a command topic.
type Command struct {
	Subject  string
	DeviceID string
	MAC      string
	Field    record.Field
	Payload  []byte
}

// ParseCommandTopic splits home/<host>/MQTTto<SUBJECT>/<id>/command/<mac>_<field>.
func ParseCommandTopic(topic string) (Command, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 6 || parts[0] != topicRoot || parts[4] != "command" {
		return Command{}, false
	}
	subject, ok := strings.CutPrefix(parts[2], "MQTTto")
	if !ok || subject == "" {
		return Command{}, false
	}
	mac, name, ok := strings.Cut(parts[5], "_")
	if !ok || mac == "" {
		return Command{}, false
	}
	field, ok := record.ParseField(name)
	if !ok {
		return Command{}, false
	}
	return Command{
		Subject:  subject,
		DeviceID: parts[3],
		MAC:      mac,
		Field:    field,
	}, true
}
