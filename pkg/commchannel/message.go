package commchannel

import (
	"sort"

	"github.com/eclipse/paho.golang/paho"
)

// User property keys of the service message envelope.
const (
	PropMessageType = "mt"
	PropProtocolID  = "pid"
)

// ProtocolVersion is the value of the "pid" user property.
const ProtocolVersion = "1"

// Message is an application message exchanged over the channel.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool

	// CorrelationData pairs a response with its request.
	CorrelationData []byte

	// ResponseTopic tells the service where to publish the response.
	ResponseTopic string

	ContentType string

	// UserProperties holds the MQTT v5 user properties. Duplicate keys keep
	// the first value.
	UserProperties map[string]string
}

// MessageType returns the "mt" user property.
func (m *Message) MessageType() string {
	return m.UserProperties[PropMessageType]
}

// MessageHandler processes an incoming message. It runs on the MQTT client's
// receive goroutine and must not block.
type MessageHandler func(msg *Message)

// toPublish converts m to a paho PUBLISH packet.
func (m *Message) toPublish() *paho.Publish {
	props := &paho.PublishProperties{
		CorrelationData: m.CorrelationData,
		ResponseTopic:   m.ResponseTopic,
		ContentType:     m.ContentType,
	}
	for _, k := range sortedKeys(m.UserProperties) {
		props.User.Add(k, m.UserProperties[k])
	}
	return &paho.Publish{
		QoS:        m.QoS,
		Retain:     m.Retain,
		Topic:      m.Topic,
		Properties: props,
		Payload:    m.Payload,
	}
}

// messageFromPublish converts a received PUBLISH packet.
func messageFromPublish(p *paho.Publish) *Message {
	msg := &Message{
		Topic:          p.Topic,
		Payload:        p.Payload,
		QoS:            p.QoS,
		Retain:         p.Retain,
		UserProperties: make(map[string]string),
	}
	if p.Properties == nil {
		return msg
	}
	msg.CorrelationData = p.Properties.CorrelationData
	msg.ResponseTopic = p.Properties.ResponseTopic
	msg.ContentType = p.Properties.ContentType
	for _, up := range p.Properties.User {
		if _, ok := msg.UserProperties[up.Key]; !ok {
			msg.UserProperties[up.Key] = up.Value
		}
	}
	return msg
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
