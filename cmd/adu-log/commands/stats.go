package commands

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/geebinge/iot-hub-device-update/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int

	// Requests counts outgoing messages carrying correlation data; Answered
	// counts those matched by an incoming message with the same correlation.
	Requests int
	Answered int

	TimeRange struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single MQTT session.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	BrokerAddr string
	DeviceID   string
	ScopeID    string
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	pending := make(map[string]bool)

	err = reader.Each(func(event log.Event) error {
		stats.add(event, pending)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	printStats(w, stats)
	return nil
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event, pending map[string]bool) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	// Track connection stats
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.BrokerAddr != "" && conn.BrokerAddr == "" {
		conn.BrokerAddr = event.BrokerAddr
	}
	if event.DeviceID != "" && conn.DeviceID == "" {
		conn.DeviceID = event.DeviceID
	}
	if event.ScopeID != "" {
		conn.ScopeID = event.ScopeID
	}

	if msg := event.Message; msg != nil {
		s.MessagesByType[event.Label()]++
		if msg.CorrelationID != "" {
			switch event.Direction {
			case log.DirectionOut:
				if !pending[msg.CorrelationID] {
					pending[msg.CorrelationID] = true
					s.Requests++
				}
			case log.DirectionIn:
				if pending[msg.CorrelationID] {
					delete(pending, msg.CorrelationID)
					s.Answered++
				}
			}
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// printCounts writes one titled section with a line per non-zero key,
// in the order given.
func printCounts[K interface {
	comparable
	fmt.Stringer
}](w io.Writer, title string, keys []K, counts map[K]int) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", k.String()+":", n)
		}
	}
	fmt.Fprintln(w)
}

type label string

func (l label) String() string { return string(l) }

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprint(w, "=== Device Update Protocol Log Statistics ===\n\n")

	if stats.TotalEvents > 0 {
		start, end := stats.TimeRange.Start, stats.TimeRange.End
		fmt.Fprintf(w, "Time Range: %s to %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n\n", end.Sub(start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", stats.TotalEvents)

	printCounts(w, "Events by Layer",
		[]log.Layer{log.LayerTransport, log.LayerChannel, log.LayerOperation}, stats.EventsByLayer)
	printCounts(w, "Events by Category",
		[]log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError}, stats.EventsByCategory)
	printCounts(w, "Events by Direction",
		[]log.Direction{log.DirectionIn, log.DirectionOut}, stats.EventsByDirection)

	if len(stats.MessagesByType) > 0 {
		types := make([]label, 0, len(stats.MessagesByType))
		byType := make(map[label]int, len(stats.MessagesByType))
		for t, n := range stats.MessagesByType {
			types = append(types, label(t))
			byType[label(t)] = n
		}
		slices.Sort(types)
		printCounts(w, "Messages by Type", types, byType)
		fmt.Fprintf(w, "Requests: %d, answered: %d\n\n", stats.Requests, stats.Answered)
	}

	ids := make([]string, 0, len(stats.Connections))
	for id := range stats.Connections {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return stats.Connections[a].FirstSeen.Compare(stats.Connections[b].FirstSeen)
	})

	fmt.Fprintf(w, "Connections: %d\n", len(ids))
	for _, id := range ids {
		cs := stats.Connections[id]
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n",
			shortenConnID(id), cs.Events, cs.LastSeen.Sub(cs.FirstSeen).Round(time.Millisecond))
		for _, kv := range [][2]string{{"Broker", cs.BrokerAddr}, {"Device", cs.DeviceID}, {"Scope", cs.ScopeID}} {
			if kv[1] != "" {
				fmt.Fprintf(w, "           %s: %s\n", kv[0], kv[1])
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", stats.Errors)
	}
}
