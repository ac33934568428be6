package realtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePub struct {
	events []string
	err    error
}

func (p *fakePub) PublishFeedEvent(event string, _ []byte) error {
	p.events = append(p.events, event)
	return p.err
}

type fakeSub struct {
	handler   func(event string, payload []byte)
	cancelled bool
	err       error
}

func (s *fakeSub) SubscribeFeed(h func(event string, payload []byte)) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	s.handler = h
	return func() { s.cancelled = true }, nil
}

func feedClient(id string) *Client {
	return &Client{ID: id, send: make(chan WSMessage, 4)}
}

// received drains one buffered message; broadcast is synchronous so there
// is nothing to wait for.
func received(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("client received nothing")
		return WSMessage{}
	}
}

func TestHubLocalFanOut(t *testing.T) {
	t.Parallel()
	hub := NewHub(zap.NewNop(), nil, nil)
	a, b := feedClient("a"), feedClient("b")
	hub.Register(a)
	hub.Register(b)
	require.Equal(t, 2, hub.ClientCount())

	hub.Publish("checkin", map[string]interface{}{"ordinal": 1})

	for _, c := range []*Client{a, b} {
		msg := received(t, c)
		require.Equal(t, "checkin", msg.Event)

		var payload struct {
			Ordinal int `json:"ordinal"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		require.Equal(t, 1, payload.Ordinal)
	}

	hub.Unregister(a)
	require.Equal(t, 1, hub.ClientCount())

	hub.Publish("checkin", map[string]interface{}{"ordinal": 2})
	require.Empty(t, a.send, "unregistered clients receive nothing")
	require.Len(t, b.send, 1)
}

func TestHubSkipsSlowClient(t *testing.T) {
	t.Parallel()
	hub := NewHub(zap.NewNop(), nil, nil)
	slow := &Client{ID: "slow", send: make(chan WSMessage, 1)}
	hub.Register(slow)

	// the second publish finds a full buffer and must not block
	hub.Publish("checkin", map[string]interface{}{"ordinal": 1})
	hub.Publish("checkin", map[string]interface{}{"ordinal": 2})
	require.Len(t, slow.send, 1, "overflow is dropped, not queued")
}

func TestHubPublishesThroughRedis(t *testing.T) {
	t.Parallel()
	pub := &fakePub{}
	sub := &fakeSub{}
	hub := NewHub(zap.NewNop(), pub, sub)
	c := feedClient("c")
	hub.Register(c)

	hub.Publish("checkin", map[string]interface{}{"ordinal": 1})
	require.Equal(t, []string{"checkin"}, pub.events)
	require.Empty(t, c.send, "local fan-out waits for the subscription echo")

	// the Redis subscription echoes the event back to this instance
	sub.handler("checkin", []byte(`{"ordinal":1}`))
	msg := received(t, c)
	require.Equal(t, "checkin", msg.Event)
	require.JSONEq(t, `{"ordinal":1}`, string(msg.Data))

	hub.Close()
	require.True(t, sub.cancelled)
}

func TestHubFallsBackWhenPublishFails(t *testing.T) {
	t.Parallel()
	pub := &fakePub{err: fmt.Errorf("redis down")}
	hub := NewHub(zap.NewNop(), pub, nil)
	c := feedClient("c")
	hub.Register(c)

	hub.Publish("checkin", map[string]interface{}{"ordinal": 1})
	msg := received(t, c)
	require.Equal(t, "checkin", msg.Event, "a dead broker never blinds local dashboards")
}

func TestHubFallsBackWhenSubscribeFails(t *testing.T) {
	t.Parallel()
	pub := &fakePub{}
	hub := NewHub(zap.NewNop(), pub, &fakeSub{err: fmt.Errorf("redis down")})
	c := feedClient("c")
	hub.Register(c)

	hub.Publish("checkin", map[string]interface{}{"ordinal": 1})
	require.Empty(t, pub.events, "without a subscription nothing goes through Redis")
	msg := received(t, c)
	require.Equal(t, "checkin", msg.Event)
}
