package notify

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/callowcreation/sfs-api/pkg/logging"
)

// Sender delivers one enveloped message to a channel's audience.
type Sender interface {
	Send(ctx context.Context, channelID string, message interface{}) error
}

const sendTimeout = 15 * time.Second

// Dispatcher fans broadcasts out to all configured senders. Delivery is
// fire-and-forget: it happens after the durable write, off the request path,
// and failures are logged but never surfaced to the caller.
type Dispatcher struct {
	cycle      string
	version    string
	senders    []Sender
	logger     logging.Logger
	operations *prometheus.CounterVec
}

func NewDispatcher(cycle, version string, logger logging.Logger, senders ...Sender) *Dispatcher {
	return &Dispatcher{
		cycle:   cycle,
		version: version,
		senders: senders,
		logger:  logger,
	}
}

// WithOperationsCounter attaches a counter incremented per delivery attempt,
// labeled by action and outcome.
func (d *Dispatcher) WithOperationsCounter(counter *prometheus.CounterVec) *Dispatcher {
	d.operations = counter
	return d
}

// Dispatch queues a payload for delivery and returns immediately.
func (d *Dispatcher) Dispatch(p Payload) {
	env := Wrap(d.cycle, d.version, p)

	for _, sender := range d.senders {
		go func(s Sender) {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			err := s.Send(ctx, p.ChannelID, env)
			d.count(p.Action, err)
			if err != nil {
				d.logger.WithError(err).WithFields(logging.Fields{
					"channel_id": p.ChannelID,
					"action":     p.Action,
				}).Warn("Broadcast delivery failed")
			}
		}(sender)
	}
}

func (d *Dispatcher) count(action string, err error) {
	if d.operations == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.operations.WithLabelValues(action, status).Inc()
}
