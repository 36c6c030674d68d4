package commchannel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adu_commchannel_state",
		Help: "Current communication channel state (0=DISCONNECTED, 1=CONNECTING, 2=SUBSCRIBING, 3=SUBSCRIBED, 4=ERROR).",
	}, []string{"channel"})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adu_commchannel_messages_total",
		Help: "Application messages sent and received on a communication channel.",
	}, []string{"channel", "direction", "type"})

	connectErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adu_commchannel_connect_errors_total",
		Help: "Failed MQTT connection attempts.",
	}, []string{"channel"})
)
