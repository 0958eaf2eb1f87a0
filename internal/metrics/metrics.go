// Package metrics holds the rig's Prometheus counters. They are
// registered on the default registry and served by the web status
// server when it is enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSent counts image records written to the client, by role flag.
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "frames_sent_total",
		Help:      "Image frames sent to the client, labelled by role flag.",
	}, []string{"role"})

	// CommandsProcessed counts dispatched control commands by code.
	CommandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "commands_processed_total",
		Help:      "Control commands dispatched, labelled by command code.",
	}, []string{"code"})

	// UnknownCommands counts control lines with a code outside the set.
	UnknownCommands = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "commands_unknown_total",
		Help:      "Control lines ignored because their code is unknown.",
	})

	// MotorOrders counts orders handed to the transport driver, by kind.
	MotorOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "motor_orders_total",
		Help:      "Transport orders executed, labelled by order kind.",
	}, []string{"kind"})

	// PoolWaits counts capture stalls waiting for an idle transmit slot.
	PoolWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "streamer_pool_waits_total",
		Help:      "Times the capture path had to wait for an idle transmit slot.",
	})

	// AEConvergences counts completed autoexposure searches.
	AEConvergences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filmrig",
		Name:      "autoexposure_convergences_total",
		Help:      "Completed autoexposure convergence runs.",
	})
)
