package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"account-service/internal/client"
	"account-service/internal/model"
	"account-service/internal/util"
)

const (
	insertQuery = "INSERT INTO auth_audit (event_id, event_type, credential_id, email, occurred_at)"

	flushInterval = 5 * time.Second
	maxBuffered   = 500
)

// Recorder appends auth events to the ClickHouse auth_audit table. Rows are
// buffered and flushed in batches; a lost batch costs audit rows, not
// correctness, so flush errors are logged and dropped.
type Recorder struct {
	clickhouse *client.ClickHouseClient

	mu     sync.Mutex
	buffer [][]interface{}

	done chan struct{}
	once sync.Once
}

func NewRecorder(chClient *client.ClickHouseClient) *Recorder {
	r := &Recorder{
		clickhouse: chClient,
		buffer:     make([][]interface{}, 0, maxBuffered),
		done:       make(chan struct{}),
	}
	if chClient != nil {
		go r.flushLoop()
	}
	return r
}

// Record buffers one audit row. Safe to call with a nil receiver.
func (r *Recorder) Record(event *model.AccountEvent) {
	if r == nil || r.clickhouse == nil || event == nil {
		return
	}
	row := []interface{}{
		event.EventID,
		event.Type,
		event.CredentialID,
		event.Email,
		event.OccurredAt,
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, row)
	shouldFlush := len(r.buffer) >= maxBuffered
	r.mu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

func (r *Recorder) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.done:
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	rows := r.buffer
	r.buffer = make([][]interface{}, 0, maxBuffered)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.clickhouse.BatchInsert(ctx, insertQuery, rows); err != nil {
		util.Error("failed to flush audit batch",
			zap.Int("rows", len(rows)),
			zap.Error(err))
	}
}

// Close flushes pending rows and stops the background loop.
func (r *Recorder) Close() {
	if r == nil || r.clickhouse == nil {
		return
	}
	r.once.Do(func() { close(r.done) })
}
