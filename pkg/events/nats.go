package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/metrics"
)

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on <prefix>.job.<id> and <prefix>.all
type NATSPublisher struct {
	nc         conn
	jobPrefix  string
	allSubject string
	logger     logger.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// ConnectNATS dials the server at url and returns a publisher using prefix for subjects
func ConnectNATS(url, prefix string, log logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("proofrail-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Notice("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return newNATSPublisher(nc, prefix, log), nil
}

func newNATSPublisher(nc conn, prefix string, log logger.Logger) *NATSPublisher {
	prefix = strings.Trim(prefix, ".")
	return &NATSPublisher{
		nc:         nc,
		jobPrefix:  prefix + ".job.",
		allSubject: prefix + ".all",
		logger:     log,
	}
}

// JobSubject returns the subject carrying events of one job
func (p *NATSPublisher) JobSubject(jobID uint64) string {
	return p.jobPrefix + strconv.FormatUint(jobID, 10)
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(event JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Publish to job-specific subject
	if err := p.nc.Publish(p.JobSubject(event.JobID), data); err != nil {
		metrics.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
		p.logger.ErrorWithJob(event.JobID, "Failed to publish %s event: %v", event.Type, err)
		return fmt.Errorf("publish event: %w", err)
	}

	// Publish to global subject
	if err := p.nc.Publish(p.allSubject, data); err != nil {
		p.logger.Error("Failed to publish global event: %v", err)
	}

	metrics.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
