// Package interactive provides the interactive command-line interface
// for the Device Update agent.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/geebinge/iot-hub-device-update/pkg/commchannel"
	"github.com/geebinge/iot-hub-device-update/pkg/enrollment"
	"github.com/geebinge/iot-hub-device-update/pkg/statestore"
)

// Channel is the view of the service channel the console shows.
type Channel interface {
	ID() string
	State() commchannel.State
	BrokerURL() string
	ConnectionID() string
	CommonTopic() string
	SubscribedTopics() []string
}

// Enrollment is the view of the enrollment operation the console drives.
type Enrollment interface {
	Data() enrollment.Data
	Refresh()
}

// Console handles interactive mode for adu-agent.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	store      *statestore.Store
	channel    Channel
	enrollment Enrollment
}

// New creates a console. Call Attach before Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "adu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach connects the console to the running agent.
func (c *Console) Attach(store *statestore.Store, ch Channel, enr Enrollment) {
	c.store = store
	c.channel = ch
	c.enrollment = enr
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if !c.execute(strings.ToLower(parts[0]), parts[1:]) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute runs one command. It returns false when the console should exit.
func (c *Console) execute(cmd string, args []string) bool {
	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "store":
		c.cmdStore()

	case "topics":
		c.cmdTopics()

	case "device-id":
		c.cmdDeviceID(args)

	case "register":
		c.cmdRegister(args)

	case "hostname":
		c.cmdHostname(args)

	case "enroll", "refresh":
		c.cmdEnroll()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Device Update Agent Commands:
  Inspection:
    status             - Show channel and enrollment status
    store              - Show State Store facts
    topics             - List subscribed topics

  Identity:
    device-id <id>     - Set the external device id
    register [on|off]  - Mark the device registered (default on)
    hostname <host>    - Set the broker hostname

  Enrollment:
    enroll             - Send an enrollment request now

  General:
    help               - Show this help
    quit               - Exit agent`)
}

// cmdStatus shows channel and enrollment status.
func (c *Console) cmdStatus() {
	fmt.Fprintln(c.out, "\nChannel")
	fmt.Fprintln(c.out, "-------------------------------------------")
	if c.channel == nil {
		fmt.Fprintln(c.out, "  (not attached)")
	} else {
		fmt.Fprintf(c.out, "  ID:             %s\n", c.channel.ID())
		fmt.Fprintf(c.out, "  State:          %s\n", c.channel.State())
		fmt.Fprintf(c.out, "  Broker:         %s\n", orNone(c.channel.BrokerURL()))
		fmt.Fprintf(c.out, "  Connection ID:  %s\n", orNone(c.channel.ConnectionID()))
		fmt.Fprintf(c.out, "  Common topic:   %s\n", orNone(c.channel.CommonTopic()))
	}

	fmt.Fprintln(c.out, "\nEnrollment")
	fmt.Fprintln(c.out, "-------------------------------------------")
	if c.enrollment == nil {
		fmt.Fprintln(c.out, "  (not attached)")
		return
	}
	d := c.enrollment.Data()
	fmt.Fprintf(c.out, "  State:          %s\n", d.State)
	fmt.Fprintf(c.out, "  Enrolled:       %t\n", d.IsEnrolled)
	fmt.Fprintf(c.out, "  Scope ID:       %s\n", orNone(d.ScopeID))
	if d.ResultCode != 0 || d.ExtendedResultCode != 0 {
		fmt.Fprintf(c.out, "  Result:         %d (0x%08x)\n", d.ResultCode, d.ExtendedResultCode)
	}
	if !d.RequestSentAt.IsZero() {
		fmt.Fprintf(c.out, "  Last request:   %s\n", d.RequestSentAt.Format(time.RFC3339))
	}
	if !d.LastResponseAt.IsZero() {
		fmt.Fprintf(c.out, "  Last response:  %s\n", d.LastResponseAt.Format(time.RFC3339))
	}
	if d.CorrelationID != "" {
		fmt.Fprintf(c.out, "  Pending:        %s\n", d.CorrelationID)
	}
}

// cmdStore lists the State Store facts.
func (c *Console) cmdStore() {
	if c.store == nil {
		fmt.Fprintln(c.out, "State Store not attached")
		return
	}
	keys := c.store.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(c.out, "State Store is empty")
		return
	}
	for _, k := range keys {
		v, _ := c.store.Get(k)
		fmt.Fprintf(c.out, "  %-32s %v\n", k, v)
	}
}

func (c *Console) cmdTopics() {
	if c.channel == nil {
		fmt.Fprintln(c.out, "Channel not attached")
		return
	}
	topics := c.channel.SubscribedTopics()
	if len(topics) == 0 {
		fmt.Fprintln(c.out, "No subscribed topics")
		return
	}
	for _, t := range topics {
		fmt.Fprintf(c.out, "  %s\n", t)
	}
}

func (c *Console) cmdDeviceID(args []string) {
	if c.store == nil {
		fmt.Fprintln(c.out, "State Store not attached")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: device-id <id>")
		return
	}
	c.store.SetExternalDeviceID(args[0])
	fmt.Fprintf(c.out, "External device id set to %s\n", args[0])
}

func (c *Console) cmdRegister(args []string) {
	if c.store == nil {
		fmt.Fprintln(c.out, "State Store not attached")
		return
	}
	registered := true
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes":
		case "off", "false", "no":
			registered = false
		default:
			fmt.Fprintln(c.out, "Usage: register [on|off]")
			return
		}
	}
	c.store.SetDeviceRegistered(registered)
	fmt.Fprintf(c.out, "Device registered: %t\n", registered)
}

func (c *Console) cmdHostname(args []string) {
	if c.store == nil {
		fmt.Fprintln(c.out, "State Store not attached")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: hostname <host>")
		return
	}
	c.store.SetMQTTBrokerHostname(args[0])
	fmt.Fprintf(c.out, "Broker hostname set to %s\n", args[0])
}

func (c *Console) cmdEnroll() {
	if c.enrollment == nil {
		fmt.Fprintln(c.out, "Enrollment not attached")
		return
	}
	c.enrollment.Refresh()
	fmt.Fprintln(c.out, "Enrollment request scheduled")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
