package invaders

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	eventBufferSize    = 1024
	maxEventsPerSec    = 10000
	maxEventsPerPlayer = 100
	batchFlushSize     = 64
	batchFlushInterval = 100 * time.Millisecond
	playerLimiterIdle  = 5 * time.Minute
)

// LoggedEvent pairs a reducer Event with the bookkeeping an operator
// replay trail needs: which tick produced it, a monotonic sequence
// number, and which player (if any) triggered it for per-source rate
// limiting.
type LoggedEvent struct {
	Event
	Tick     uint64 `json:"tick"`
	Sequence uint64 `json:"sequence"`
	PlayerID string `json:"playerId,omitempty"`
}

// EventLog is a bounded, rate-limited, asynchronously flushed circular
// buffer of room events, adapted from the engine's event_log.go. The
// "source" rate limit key is the emitting player's id; a malicious or
// buggy client can flood its own channel without starving the log for
// everyone else in the room.
type EventLog struct {
	buffer    [eventBufferSize]LoggedEvent
	writeHead uint64
	readHead  uint64

	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*playerLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64
	totalCount   uint64
}

type playerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewEventLog builds an idle event log; call Start to begin flushing.
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(maxEventsPerSec, maxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and begins the async writer and
// limiter-cleanup goroutines. An empty filePath disables file output
// (events are still accepted and counted, just never flushed).
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}
	el.filePath = filePath

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop drains the buffer with a final flush and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit appends one event to the log, subject to global and per-player
// rate limits. Returns false if the event was dropped; dropping never
// affects the reducer's own state, only the replay trail.
func (el *EventLog) Emit(tick uint64, playerID string, event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	if playerID != "" {
		if !el.getPlayerLimiter(playerID).Allow() {
			atomic.AddUint64(&el.droppedCount, 1)
			return false
		}
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tailPos := atomic.LoadUint64(&el.readHead)
	if head-tailPos >= eventBufferSize {
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	logged := LoggedEvent{Event: event, Tick: tick, PlayerID: playerID, Sequence: head}
	el.buffer[(head-1)%eventBufferSize] = logged

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// EmitAll logs every event from one tick's reducer output, tagging
// each with the originating tick for replay ordering.
func (el *EventLog) EmitAll(tick uint64, playerID string, events []Event) {
	for _, e := range events {
		el.Emit(tick, playerID, e)
	}
}

func (el *EventLog) getPlayerLimiter(playerID string) *rate.Limiter {
	if entry, ok := el.playerLimiters.Load(playerID); ok {
		e := entry.(*playerLimiterEntry)
		e.lastUsed = time.Now()
		return e.limiter
	}
	entry := &playerLimiterEntry{
		limiter:  rate.NewLimiter(maxEventsPerPlayer, maxEventsPerPlayer/10),
		lastUsed: time.Now(),
	}
	actual, _ := el.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*playerLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()

	batch := make([]LoggedEvent, 0, batchFlushSize)
	for {
		select {
		case <-el.stopChan:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
			return
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(playerLimiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-playerLimiterIdle)
			el.playerLimiters.Range(func(key, value interface{}) bool {
				if value.(*playerLimiterEntry).lastUsed.Before(cutoff) {
					el.playerLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (el *EventLog) collectBatch(batch []LoggedEvent) []LoggedEvent {
	head := atomic.LoadUint64(&el.writeHead)
	tailPos := atomic.LoadUint64(&el.readHead)

	for i := tailPos; i < head && len(batch) < batchFlushSize; i++ {
		batch = append(batch, el.buffer[i%eventBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}
	return batch
}

func (el *EventLog) flushBatch(batch []LoggedEvent) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.file.Write(data)
		el.file.Write([]byte("\n"))
	}
}

// GetStats reports buffer occupancy and loss counters for monitoring.
func (el *EventLog) GetStats() map[string]interface{} {
	head := atomic.LoadUint64(&el.writeHead)
	tailPos := atomic.LoadUint64(&el.readHead)
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": head - tailPos,
		"running": el.running.Load(),
	}
}
