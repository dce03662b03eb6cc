package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vialactivo/pkg/cache"
	embeddednats "vialactivo/pkg/services/embedded-nats"
	"vialactivo/pkg/shared"
	"vialactivo/pkg/stats"
)

type countingInvalidator struct {
	calls atomic.Int32
	err   error
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func eventMsg(t *testing.T, eventType string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(shared.Event{
		ID:        "evt-1",
		Type:      eventType,
		Subject:   shared.ReportEventSubject(eventType),
		Data:      map[string]interface{}{"id": "r1"},
		Timestamp: time.Now(),
		Source:    shared.EventSource,
	})
	require.NoError(t, err)
	return &nats.Msg{Subject: shared.ReportEventSubject(eventType), Data: data}
}

func TestStatisticsWorkerHandle(t *testing.T) {
	inv := &countingInvalidator{}
	w := NewStatisticsWorker(nil, inv, zap.NewNop())

	require.NoError(t, w.handle(eventMsg(t, shared.EventTypeCreated)))
	assert.Equal(t, int32(1), inv.calls.Load())

	// undecodable payloads are dropped without touching the cache
	require.NoError(t, w.handle(&nats.Msg{Subject: shared.SubjectReportCreated, Data: []byte("{")}))
	assert.Equal(t, int32(1), inv.calls.Load())

	inv.err = errors.New("redis down")
	assert.Error(t, w.handle(eventMsg(t, shared.EventTypeDeleted)))
}

func TestAuditWorkerHandle(t *testing.T) {
	w := NewAuditWorker("AdminAuditWorker", nil, shared.StreamAdmins, shared.SubjectAdminsAll, zap.NewNop())
	assert.NoError(t, w.handle(eventMsg(t, shared.EventTypeRegistered)))
	assert.NoError(t, w.handle(&nats.Msg{Subject: shared.SubjectAdminRegistered, Data: []byte("not json")}))
}

func TestManagerInvalidatesCacheOnReportEvents(t *testing.T) {
	cfg := embeddednats.DefaultConfig()
	cfg.Port = -1
	cfg.DataDir = t.TempDir()
	en, err := embeddednats.New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, en.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = en.Shutdown(ctx)
	})

	require.NoError(t, en.CreateVialActivoStreams())
	for _, c := range Consumers() {
		require.NoError(t, en.CreateDurableConsumer(c.Stream, c.Consumer, c.Filter))
	}

	ctx := context.Background()
	statsCache := cache.NewStatisticsCache(cache.NewMemoryKVStore(), time.Minute, zap.NewNop())
	require.NoError(t, statsCache.Put(ctx, stats.Snapshot{TotalReportes: 7}))

	m, err := NewManager(en, statsCache, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer m.Stop()

	msg := eventMsg(t, shared.EventTypeUpdated)
	require.NoError(t, en.PublishWithDedup(msg.Subject, msg.Data, "r1-updated-1"))

	assert.Eventually(t, func() bool {
		_, err := statsCache.Get(ctx)
		return errors.Is(err, cache.ErrCacheMiss)
	}, 10*time.Second, 50*time.Millisecond)
}
