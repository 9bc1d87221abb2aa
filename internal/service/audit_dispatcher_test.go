package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

func TestAuditDispatcherDrainsOnStop(t *testing.T) {
	store := &auditStub{}
	dispatcher := NewAuditDispatcher(store, nil, nil, AuditDispatcherConfig{Workers: 2, BufferSize: 8})
	dispatcher.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, dispatcher.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionAccessDecision}))
	}
	dispatcher.Stop()

	assert.Len(t, store.actions(), 5)
}

func TestAuditDispatcherDropsWhenStopped(t *testing.T) {
	metrics := NewMetricsService()
	dispatcher := NewAuditDispatcher(&auditStub{}, metrics, nil, AuditDispatcherConfig{})

	require.NoError(t, dispatcher.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionSessionEnd}))
	assert.Equal(t, float64(1), counterValue(t, metrics.auditDropped))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m promdto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
