package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofrail/proofrail-agent/pkg/logger"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	failOn  string
	drained bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if subject == c.failOn {
		return errors.New("nats: connection closed")
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisher(t *testing.T) {
	nc := &fakeConn{}
	p := newNATSPublisher(nc, "proofrail.agent.", &logger.EmptyLogger{})

	event := NewJobEvent(TypeExecuted, 42, "ST1THWXQ8368SDN2MJGE4BMDKMCHZ2GSVTSQDA7QF").WithTx("0xabc").WithHeight(1200)
	require.NoError(t, p.Publish(event))

	require.Len(t, nc.msgs, 2)
	assert.Equal(t, "proofrail.agent.job.42", nc.msgs[0].subject)
	assert.Equal(t, "proofrail.agent.all", nc.msgs[1].subject)

	var decoded JobEvent
	require.NoError(t, json.Unmarshal(nc.msgs[0].data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, TypeExecuted, decoded.Type)
	assert.Equal(t, "0xabc", decoded.TxID)
	assert.Equal(t, uint64(1200), decoded.Height)
	assert.Empty(t, decoded.Reason)

	require.NoError(t, p.Close())
	assert.True(t, nc.drained)
}

func TestNATSPublisherFailures(t *testing.T) {
	t.Run("job subject failure is returned", func(t *testing.T) {
		nc := &fakeConn{failOn: "agent.job.1"}
		p := newNATSPublisher(nc, "agent", &logger.EmptyLogger{})
		assert.Error(t, p.Publish(NewJobEvent(TypeRejected, 1, "")))
		assert.Empty(t, nc.msgs)
	})

	t.Run("global subject failure is logged only", func(t *testing.T) {
		nc := &fakeConn{failOn: "agent.all"}
		p := newNATSPublisher(nc, "agent", &logger.EmptyLogger{})
		assert.NoError(t, p.Publish(NewJobEvent(TypeRejected, 1, "").WithReason("fee-too-low")))
		assert.Len(t, nc.msgs, 1)
	})
}

func TestNewJobEvent(t *testing.T) {
	a := NewJobEvent(TypeFeeClaimed, 1, "agent")
	b := NewJobEvent(TypeFeeClaimed, 1, "agent")
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Time.IsZero())
	assert.NoError(t, NoopPublisher{}.Publish(a))
}
