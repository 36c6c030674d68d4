// Package mocks provides testify mocks of the commchannel interfaces.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
)

// Channel is a mock of commchannel.Channel.
type Channel struct{ mock.Mock }

var _ commchannel.Channel = (*Channel)(nil)

func (c *Channel) ID() string                   { return c.Called().String(0) }
func (c *Channel) State() commchannel.State     { return c.Called().Get(0).(commchannel.State) }
func (c *Channel) IsSubscribed(t string) bool   { return c.Called(t).Bool(0) }
func (c *Channel) Subscribe(t string) error     { return c.Called(t).Error(0) }
func (c *Channel) RemoveHandler(msgType string) { c.Called(msgType) }

func (c *Channel) Publish(msg *commchannel.Message, done func(error)) error {
	return c.Called(msg, done).Error(0)
}

func (c *Channel) SetHandler(msgType string, h commchannel.MessageHandler) {
	c.Called(msgType, h)
}

// LastHandler returns the handler passed to the most recent SetHandler call
// for msgType, or nil. It must not race with calls on c.
func (c *Channel) LastHandler(msgType string) commchannel.MessageHandler {
	for i := len(c.Calls) - 1; i >= 0; i-- {
		call := c.Calls[i]
		if call.Method == "SetHandler" && call.Arguments.String(0) == msgType {
			h, _ := call.Arguments.Get(1).(commchannel.MessageHandler)
			return h
		}
	}
	return nil
}
