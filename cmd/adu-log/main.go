// Command adu-log views and analyzes protocol traces written by adu-agent
// (the -protocol-log flag or the protocolLog configuration key).
//
// Usage:
//
//	adu-log <command> [flags] <file.alog>
//
// Commands:
//
//	view     Print events in human-readable form
//	export   Convert a trace to JSON lines or CSV
//	filter   Copy matching events into a new trace
//	stats    Summarize a trace
//
// Examples:
//
//	# Everything the channel manager saw
//	adu-log view -layer channel agent.alog
//
//	# Only enrollment responses
//	adu-log view -type enr_resp agent.alog
//
//	# Spreadsheet-friendly export
//	adu-log export -format csv -o agent.csv agent.alog
//
//	# One request/response exchange
//	adu-log filter -correlation-id 7f1c2d3e -o exchange.alog agent.alog
//
//	# Request/response pairing and per-session summary
//	adu-log stats agent.alog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/geebinge/iot-hub-device-update/cmd/adu-log/commands"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commandTable = []command{
	{"view", "Print events in human-readable form", runView},
	{"export", "Convert a trace to JSON lines or CSV", runExport},
	{"filter", "Copy matching events into a new trace", runFilter},
	{"stats", "Summarize a trace", runStats},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	switch args[0] {
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return 0
	}

	for _, c := range commandTable {
		if c.name != args[0] {
			continue
		}
		err := c.run(args[1:], stdout)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
			return 2
		default:
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
	printUsage(stderr)
	return 2
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("adu-log - Device Update protocol trace analyzer\n\n")
	b.WriteString("Usage:\n  adu-log <command> [flags] <file.alog>\n\nCommands:\n")
	for _, c := range commandTable {
		fmt.Fprintf(&b, "  %-8s %s\n", c.name, c.summary)
	}
	b.WriteString("\nRun \"adu-log <command> -help\" for the flags of a command.\n")
	io.WriteString(w, b.String())
}

// newFlagSet returns a flag set whose usage text names the command and its
// positional arguments. Parse errors are returned, not fatal.
func newFlagSet(name, positional string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  adu-log %s [flags] %s\n\nFlags:\n", name, positional)
		fs.PrintDefaults()
	}
	return fs
}

// parseWithPath parses args and returns the single trace path.
func parseWithPath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(fs.Output(), "Error: exactly one log file path required")
		fs.Usage()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

// selection holds the event-shape flags shared by view and filter.
type selection struct {
	layer, direction, category, msgType *string
}

func addSelection(fs *flag.FlagSet) selection {
	return selection{
		layer:     fs.String("layer", "", "Only events from this layer (transport, channel, operation)"),
		direction: fs.String("direction", "", "Only events in this direction (in, out)"),
		category:  fs.String("category", "", "Only events of this category (message, control, state, error)"),
		msgType:   fs.String("type", "", "Only messages of this type (e.g. enr_req, enr_resp)"),
	}
}

func (s selection) viewFilter() (commands.ViewFilter, error) {
	f := commands.ViewFilter{MessageType: *s.msgType}
	if *s.layer != "" {
		l, err := commands.ParseLayerFlag(*s.layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if *s.direction != "" {
		d, err := commands.ParseDirectionFlag(*s.direction)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if *s.category != "" {
		c, err := commands.ParseCategoryFlag(*s.category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	return f, nil
}

func runView(args []string, stdout io.Writer) error {
	fs := newFlagSet("view", "<file.alog>")
	sel := addSelection(fs)
	path, err := parseWithPath(fs, args)
	if err != nil {
		return err
	}
	filter, err := sel.viewFilter()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, stdout)
}

func runExport(args []string, _ io.Writer) error {
	fs := newFlagSet("export", "<file.alog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, err := parseWithPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string, stdout io.Writer) error {
	fs := newFlagSet("filter", "-o <out.alog> <file.alog>")
	sel := addSelection(fs)
	opts := commands.FilterOptions{}
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Only this connection")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Only this device")
	fs.StringVar(&opts.ScopeID, "scope-id", "", "Only this service instance")
	fs.StringVar(&opts.Topic, "topic", "", "Only messages on this topic")
	fs.StringVar(&opts.CorrelationID, "correlation-id", "", "Only messages with this correlation id")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Events at or after this time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Events before this time (RFC3339)")

	path, err := parseWithPath(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fmt.Fprintln(fs.Output(), "Error: output file (-o) required")
		fs.Usage()
		return errUsage
	}
	opts.Layer = *sel.layer
	opts.Direction = *sel.direction
	opts.Category = *sel.category
	opts.MessageType = *sel.msgType

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Filtered %d events to %s\n", n, opts.Output)
	return nil
}

func runStats(args []string, stdout io.Writer) error {
	path, err := parseWithPath(newFlagSet("stats", "<file.alog>"), args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, stdout)
}
