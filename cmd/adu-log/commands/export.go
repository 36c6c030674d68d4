package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/geebinge/iot-hub-device-update/pkg/log"
)

// exporters maps an -format value to its writer.
var exporters = map[string]func(*log.Reader, io.Writer) error{
	"jsonl": exportJSONL,
	"csv":   exportCSV,
}

// RunExport converts the trace at path to format, writing to output or to
// stdout when output is empty. The format is checked before any file is
// opened or created.
func RunExport(path, format, output string) error {
	export, ok := exporters[format]
	if !ok {
		names := make([]string, 0, len(exporters))
		for name := range exporters {
			names = append(names, name)
		}
		slices.Sort(names)
		return fmt.Errorf("unknown format: %s (supported: %s)", format, strings.Join(names, ", "))
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if output == "" {
		return export(reader, os.Stdout)
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export(reader, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	return reader.Each(func(event log.Event) error {
		return enc.Encode(event)
	})
}

// csvColumns defines the CSV export, one column per entry.
var csvColumns = []struct {
	name  string
	value func(log.Event) string
}{
	{"timestamp", func(e log.Event) string { return e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z") }},
	{"connection_id", func(e log.Event) string { return e.ConnectionID }},
	{"direction", func(e log.Event) string { return e.Direction.String() }},
	{"layer", func(e log.Event) string { return e.Layer.String() }},
	{"category", func(e log.Event) string { return e.Category.String() }},
	{"device_id", func(e log.Event) string { return e.DeviceID }},
	{"scope_id", func(e log.Event) string { return e.ScopeID }},
	{"type", log.Event.Label},
	{"topic", func(e log.Event) string {
		if e.Message == nil {
			return ""
		}
		return e.Message.Topic
	}},
	{"correlation_id", func(e log.Event) string {
		if e.Message == nil {
			return ""
		}
		return e.Message.CorrelationID
	}},
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	record := make([]string, len(csvColumns))

	for i, c := range csvColumns {
		record[i] = c.name
	}
	if err := cw.Write(record); err != nil {
		return err
	}

	err := reader.Each(func(event log.Event) error {
		for i, c := range csvColumns {
			record[i] = c.value(event)
		}
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
