package mqttcommon

import (
	"sync"

	"github.com/google/uuid"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/topic"
)

// ContentTypeJSON is the content type of request payloads.
const ContentTypeJSON = "application/json"

// MessageContext tracks one request/response exchange of an operation.
//
// Topics are derived once and kept until Reset. The correlation id is
// replaced for every request; responses carrying any other id are ignored.
type MessageContext struct {
	// RequestType is the "mt" user property of requests, e.g. "enr_req".
	RequestType string

	// ResponseType is the expected "mt" user property of responses.
	ResponseType string

	// Scoped embeds the service instance id in the topics.
	Scoped bool

	mu            sync.RWMutex
	topics        topic.Pair
	correlationID string
}

// NewMessageContext creates a message context for the given request and
// response message types.
func NewMessageContext(requestType, responseType string, scoped bool) *MessageContext {
	return &MessageContext{
		RequestType:  requestType,
		ResponseType: responseType,
		Scoped:       scoped,
	}
}

// PublishTopic returns the request topic, or "" before it is derived.
func (c *MessageContext) PublishTopic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.Publish
}

// ResponseTopic returns the response topic, or "" before it is derived.
func (c *MessageContext) ResponseTopic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.Response
}

// HasTopics returns true once both topics are derived.
func (c *MessageContext) HasTopics() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics.Publish != "" && c.topics.Response != ""
}

// setTopics stores topics unless they were already derived. It reports
// whether the stored value changed.
func (c *MessageContext) setTopics(p topic.Pair) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics.Publish != "" && c.topics.Response != "" {
		return false
	}
	c.topics = p
	return true
}

// CorrelationID returns the id of the outstanding request, or "".
func (c *MessageContext) CorrelationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.correlationID
}

// ClearCorrelationID forgets the outstanding request. Later responses no
// longer match.
func (c *MessageContext) ClearCorrelationID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = ""
}

// Matches reports whether msg answers the outstanding request.
func (c *MessageContext) Matches(msg *commchannel.Message) bool {
	return CorrelationMatches(msg, c.CorrelationID())
}

// NewRequest records a fresh correlation id and returns the request message
// carrying payload. The id is stored before the message is returned so a
// response can never match an older request.
func (c *MessageContext) NewRequest(payload []byte) *commchannel.Message {
	id := NewCorrelationID()

	c.mu.Lock()
	c.correlationID = id
	topics := c.topics
	c.mu.Unlock()

	return &commchannel.Message{
		Topic:           topics.Publish,
		Payload:         payload,
		QoS:             1,
		CorrelationData: []byte(id),
		ResponseTopic:   topics.Response,
		ContentType:     ContentTypeJSON,
		UserProperties: map[string]string{
			commchannel.PropMessageType: c.RequestType,
			commchannel.PropProtocolID:  commchannel.ProtocolVersion,
		},
	}
}

// Reset releases the topics and the correlation id.
func (c *MessageContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = topic.Pair{}
	c.correlationID = ""
}

// NewCorrelationID returns a new random correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CorrelationMatches reports whether msg carries exactly the correlation id
// want. An empty want never matches.
func CorrelationMatches(msg *commchannel.Message, want string) bool {
	if msg == nil || want == "" {
		return false
	}
	return string(msg.CorrelationData) == want
}
