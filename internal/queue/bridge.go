package queue

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/broadcast"
)

// RecordBridge forwards every broadcast record to Kafka so downstream
// consumers (analytics, archival) see the same stream as live websocket
// clients. Messages are keyed by device id so each device's readings
// stay ordered within a partition.
type RecordBridge struct {
	producer *Producer
	bus      *broadcast.Broadcaster
	logger   *zap.Logger

	mu  sync.Mutex
	sub *broadcast.Subscriber
	wg  sync.WaitGroup
}

// NewRecordBridge creates a bridge between the broadcaster and Kafka.
func NewRecordBridge(producer *Producer, bus *broadcast.Broadcaster, logger *zap.Logger) *RecordBridge {
	return &RecordBridge{
		producer: producer,
		bus:      bus,
		logger:   logger,
	}
}

// Start subscribes to the broadcaster and begins forwarding records.
func (b *RecordBridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.sub != nil {
		b.mu.Unlock()
		return
	}
	sub := b.bus.Subscribe()
	b.sub = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for rec := range sub.C() {
			if sub.Gap() {
				b.logger.Warn("kafka bridge fell behind, records dropped")
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				b.logger.Error("failed to encode record for kafka", zap.Error(err))
				continue
			}
			if err := b.producer.Publish(ctx, rec.DeviceID, payload); err != nil {
				b.logger.Error("failed to publish record to kafka",
					zap.String("device_id", rec.DeviceID),
					zap.Error(err))
			}
		}
	}()
}

// Stop unsubscribes from the broadcaster and waits for the forwarding
// goroutine to drain.
func (b *RecordBridge) Stop() {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub == nil {
		return
	}
	b.bus.Unsubscribe(sub)
	b.wg.Wait()
}
