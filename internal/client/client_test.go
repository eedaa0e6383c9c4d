package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/wspiernik/internal/app"
	"github.com/raphaelgruber/wspiernik/internal/client"
	"github.com/raphaelgruber/wspiernik/internal/config"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

func startServer(t *testing.T) (*app.App, *client.Client) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	cfg.LLM.Provider = config.ProviderMock

	a, err := app.New(context.Background(), cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, client.New(srv.URL)
}

func TestClient_HTTP(t *testing.T) {
	a, c := startServer(t)
	ctx := context.Background()

	_, err := a.Store().SaveFacts(ctx, []models.Fact{
		{Tags: []string{"leki"}, Value: "Bierze metforminę"},
		{Tags: []string{"zdrowie"}, Value: "Ma cukrzycę"},
	})
	require.NoError(t, err)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test", h.Version)

	list, err := c.Facts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalCount)
	require.Len(t, list.Facts, 1)
	assert.Equal(t, "Ma cukrzycę", list.Facts[0].Value)

	snap, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Counters)
}

func TestClient_ServerError(t *testing.T) {
	c := client.New("http://127.0.0.1:1")
	_, err := c.Health(context.Background())
	assert.Error(t, err)
}

func TestConn_Conversation(t *testing.T) {
	_, c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := c.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	id, err := conn.Send(protocol.TypeInterventionStart, protocol.InboundPayload{ScenarioDescription: "tata upadł w łazience"})
	require.NoError(t, err)

	env, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeInterventionScenarioMatched, env.Type)
	require.NotNil(t, env.RequestID)
	assert.Equal(t, id, *env.RequestID)
	var matched protocol.ScenarioMatchedPayload
	require.NoError(t, env.Decode(&matched))
	assert.Equal(t, "fall", matched.ScenarioKey)

	env, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeInterventionQuestion, env.Type)

	_, err = conn.Send(protocol.TypeInterventionComplete, protocol.InboundPayload{})
	require.NoError(t, err)
	env, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeInterventionCompleted, env.Type)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	_, err = conn.Send(protocol.TypeGetFacts, protocol.InboundPayload{})
	assert.Error(t, err)
}

func TestConn_ReceiveCancelled(t *testing.T) {
	_, c := startServer(t)
	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
