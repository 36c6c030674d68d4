package commchannel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Session is the subset of autopaho.ConnectionManager the channel uses.
type Session interface {
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(ctx context.Context) error
}

// Dialer starts an MQTT session. It must not wait for the connection to come
// up; connection events are delivered through the callbacks in cfg.
type Dialer func(ctx context.Context, cfg autopaho.ClientConfig) (Session, error)

// DialAutopaho starts an autopaho connection manager.
func DialAutopaho(ctx context.Context, cfg autopaho.ClientConfig) (Session, error) {
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

var _ Session = (*autopaho.ConnectionManager)(nil)

// pahoLogger forwards paho's Println/Printf logging to slog.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...any) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...any) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
