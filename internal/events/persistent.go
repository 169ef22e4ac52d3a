package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agentcrew/crew/internal/db"
)

const (
	// Buffer flushes when it reaches this size.
	bufferSizeThreshold = 10
	// Buffer flushes automatically on this interval.
	flushInterval = 5 * time.Second
)

// PersistentPublisher wraps MemoryPublisher and adds journal persistence.
// Live fan-out keeps its latency; journal writes are batched. Journal
// failures are logged and dropped: the journal is derived data and must
// never block coordination.
type PersistentPublisher struct {
	inner       *MemoryPublisher
	journal     *db.Journal
	source      string
	buffer      []*db.EventRecord
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	logger      *slog.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewPersistentPublisher creates a publisher that also journals events.
// The source parameter identifies where events originate (e.g., "cli").
func NewPersistentPublisher(journal *db.Journal, source string, logger *slog.Logger, opts ...PublisherOption) *PersistentPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &PersistentPublisher{
		inner:   NewMemoryPublisher(opts...),
		journal: journal,
		source:  source,
		buffer:  make([]*db.EventRecord, 0, bufferSizeThreshold),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	p.flushTicker = time.NewTicker(flushInterval)
	p.wg.Add(1)
	go p.flushLoop()

	return p
}

// Publish broadcasts to subscribers and buffers the event for the journal.
func (p *PersistentPublisher) Publish(event Event) {
	p.inner.Publish(event)

	if p.journal == nil {
		return
	}

	record := &db.EventRecord{
		EntityID:  event.EntityID,
		EventType: string(event.Type),
		Data:      event.Data,
		Source:    p.source,
		CreatedAt: event.Time,
	}

	p.bufferMu.Lock()
	p.buffer = append(p.buffer, record)
	shouldFlush := len(p.buffer) >= bufferSizeThreshold
	p.bufferMu.Unlock()

	if shouldFlush {
		p.Flush()
	}
}

// Flush writes all buffered events to the journal.
func (p *PersistentPublisher) Flush() {
	p.bufferMu.Lock()
	if len(p.buffer) == 0 {
		p.bufferMu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = make([]*db.EventRecord, 0, bufferSizeThreshold)
	p.bufferMu.Unlock()

	if err := p.journal.SaveEvents(batch); err != nil {
		p.logger.Warn("failed to journal events", "count", len(batch), "error", err)
	}
}

// flushLoop periodically flushes the buffer until Close.
func (p *PersistentPublisher) flushLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.flushTicker.C:
			p.Flush()
		}
	}
}

// Subscribe returns a channel receiving events for the given entity.
func (p *PersistentPublisher) Subscribe(entityID string) <-chan Event {
	return p.inner.Subscribe(entityID)
}

// Unsubscribe removes a subscription channel.
func (p *PersistentPublisher) Unsubscribe(entityID string, ch <-chan Event) {
	p.inner.Unsubscribe(entityID, ch)
}

// Close flushes remaining events and shuts down.
func (p *PersistentPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.flushTicker.Stop()
		p.wg.Wait()
		if p.journal != nil {
			p.Flush()
		}
		p.inner.Close()
	})
}
