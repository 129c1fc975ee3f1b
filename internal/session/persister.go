package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/fieldflow/pkg/schema"
)

// AnswerStore is the slice of the storage collaborator the persister needs.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, sessionID string, answer *schema.Answer) error
}

const persistQueueSize = 128

// writeReq pairs an answer snapshot with its session.
type writeReq struct {
	sessionID string
	answer    schema.Answer
}

// Persister is the fire-and-forget answer writer: Write enqueues a snapshot
// and returns immediately, a background goroutine drains the queue into the
// store. Navigation therefore never waits on I/O. The durability window is
// explicit and documented: a crash after Write and before the drain loses at
// most that one answer, which the next save overwrites idempotently anyway.
//
// When the queue is full Write blocks instead of dropping: under sustained
// store slowness durability wins over latency hiding.
type Persister struct {
	store  AnswerStore
	logger *slog.Logger

	queue chan writeReq
	done  chan struct{}
	once  sync.Once
}

// NewPersister creates and starts a Persister.
func NewPersister(store AnswerStore, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persister{
		store:  store,
		logger: logger,
		queue:  make(chan writeReq, persistQueueSize),
		done:   make(chan struct{}),
	}
	go p.drain()
	return p
}

// Write enqueues an answer for persistence. The answer is copied so later
// in-place mutations do not race with the background write.
func (p *Persister) Write(sessionID string, answer *schema.Answer) {
	if answer == nil {
		return
	}
	p.queue <- writeReq{sessionID: sessionID, answer: *answer}
}

// drain writes queued answers until Close.
func (p *Persister) drain() {
	defer close(p.done)
	for req := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.store.SaveAnswer(ctx, req.sessionID, &req.answer)
		cancel()
		if err != nil {
			p.logger.Error("background answer write failed",
				slog.String("session_id", req.sessionID),
				slog.String("question_id", req.answer.QuestionID),
				slog.String("error", err.Error()))
		}
	}
}

// Close stops accepting writes and waits for the queue to drain.
func (p *Persister) Close() {
	p.once.Do(func() {
		close(p.queue)
	})
	<-p.done
}

var _ AnswerWriter = (*Persister)(nil)
