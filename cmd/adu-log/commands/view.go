// Package commands implements the adu-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/geebinge/iot-hub-device-update/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer       *log.Layer
	Direction   *log.Direction
	Category    *log.Category
	MessageType string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:       f.Layer,
		Direction:   f.Direction,
		Category:    f.Category,
		MessageType: f.MessageType,
	}
}

func (f ViewFilter) matches(e log.Event) bool {
	return f.logFilter().Match(e)
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	dir := event.Direction.String()

	// Use CTRL for control packets in header
	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, dir, layerStr, event.Label())

	if event.DeviceID != "" {
		fmt.Fprintf(w, "  Device: %s", event.DeviceID)
		if event.ScopeID != "" {
			fmt.Fprintf(w, "  Scope: %s", event.ScopeID)
		}
		fmt.Fprintln(w)
	}

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		formatControlDetails(w, event.ControlMsg)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatMessageDetails writes message-specific details.
func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  Topic: %s  QoS: %d\n", msg.Topic, msg.QoS)
	if msg.CorrelationID != "" {
		fmt.Fprintf(w, "  Correlation: %s\n", msg.CorrelationID)
	}
	if msg.ResponseTopic != "" {
		fmt.Fprintf(w, "  ResponseTopic: %s\n", msg.ResponseTopic)
	}
	if msg.ReasonCode != nil {
		fmt.Fprintf(w, "  ReasonCode: 0x%02x\n", *msg.ReasonCode)
	}
	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload (%d bytes): %s", msg.PayloadSize, formatPayload(msg.Payload))
		if msg.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatPayload prints text payloads verbatim and anything else as hex.
func formatPayload(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	return fmt.Sprintf("%x", p)
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatControlDetails writes subscription topics and reason codes.
func formatControlDetails(w io.Writer, c *log.ControlMsgEvent) {
	if len(c.Topics) > 0 {
		fmt.Fprintf(w, "  Topics: %s\n", strings.Join(c.Topics, ", "))
	}
	if len(c.ReasonCodes) > 0 {
		codes := make([]string, len(c.ReasonCodes))
		for i, rc := range c.ReasonCodes {
			codes[i] = fmt.Sprintf("0x%02x", rc)
		}
		fmt.Fprintf(w, "  ReasonCodes: %s\n", strings.Join(codes, ", "))
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayerFlag parses a -layer flag value.
func ParseLayerFlag(s string) (log.Layer, error) { return parseLayer(s) }

// ParseDirectionFlag parses a -direction flag value.
func ParseDirectionFlag(s string) (log.Direction, error) { return parseDirection(s) }

// ParseCategoryFlag parses a -category flag value.
func ParseCategoryFlag(s string) (log.Category, error) { return parseCategory(s) }

var (
	parseLayer     = log.ParseLayer
	parseDirection = log.ParseDirection
	parseCategory  = log.ParseCategory
)

// RunView prints every event passing filter to output.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return reader.Each(func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
