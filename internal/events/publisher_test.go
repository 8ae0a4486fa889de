package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), RoundFinished{Status: "success"}))
	p.Close()
}

func TestRoundFinishedJSON(t *testing.T) {
	dashboardID := 55
	event := RoundFinished{
		RoundID:     uuid.MustParse("7f1f2a4e-5b6c-4d7e-8f90-a1b2c3d4e5f6"),
		SessionID:   "s1",
		Status:      "partial",
		DashboardID: &dashboardID,
		ChartIDs:    []int{101, 103},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "7f1f2a4e-5b6c-4d7e-8f90-a1b2c3d4e5f6", raw["round_id"])
	assert.Equal(t, float64(55), raw["dashboard_id"])
	assert.NotContains(t, raw, "owner_id")
	assert.NotContains(t, raw, "failure_kind")
}

// Requires a running NATS server, e.g. NATS_TEST_URL=nats://localhost:4222
func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set - run as integration test")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("bigenie.test.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	p, err := NewNATSPublisher(url, "bigenie.test")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), RoundFinished{RoundID: uuid.New(), Status: "failed", FailureKind: "linking_failure", ChartIDs: []int{101}}))

	select {
	case msg := <-msgs:
		assert.Equal(t, "bigenie.test.failed", msg.Subject)
		var got RoundFinished
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, []int{101}, got.ChartIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
