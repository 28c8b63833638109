// Package ingest feeds restored history into the store. Batches arrive either
// through direct calls or as bus.IngestBatch events; each batch runs with the
// lifecycle in Importing so that timers stay quiet meanwhile.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/zap"
)

const checkpointKey = "ingest.checkpoint"

// Importer is the part of the store the engine writes to.
type Importer interface {
	ImportGroups(ctx context.Context, records []store.GroupRecord) (store.ImportResult, error)
	ImportContactMessages(ctx context.Context, records []store.ContactMessageRecord) (store.ImportResult, error)
	ImportGroupMessages(ctx context.Context, records []store.GroupMessageRecord) (store.ImportResult, error)
	ImportMediaItems(ctx context.Context, records []store.MediaItemRecord) (store.ImportResult, error)
	SetInternalOption(ctx context.Context, key string, value []byte) error
	InternalOption(ctx context.Context, key string) ([]byte, error)
}

// Lifecycle gates imports.
type Lifecycle interface {
	BeginImport() (func() error, error)
}

// Batch is one unit of restored history. Group records are applied first so
// that group messages find their group; media items are applied after the
// messages they attach to. A non-empty Checkpoint is stored once the batch
// is written.
type Batch struct {
	GroupRecords []store.GroupRecord
	Contacts     []store.ContactMessageRecord
	Groups       []store.GroupMessageRecord
	Media        []store.MediaItemRecord
	Checkpoint   string
}

// Completed is the payload of bus.ImportCompleted.
type Completed struct {
	GroupRecords store.ImportResult
	Contacts     store.ImportResult
	Groups       store.ImportResult
	Media        store.ImportResult
	Checkpoint   string
}

// Engine applies import batches.
type Engine struct {
	db        Importer
	lifecycle Lifecycle
	bus       *bus.Bus
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new ingest engine.
func NewEngine(db Importer, lc Lifecycle, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:        db,
		lifecycle: lc,
		bus:       b,
		logger:    logger,
	}
}

// Start subscribes to batches published on the bus.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("ingest.", 16)

	go func(done chan struct{}) {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}(e.done)
}

// Stop stops the engine and waits for a batch in flight to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	if evt.Kind != bus.IngestBatch {
		return
	}
	batch, ok := evt.Payload.(Batch)
	if !ok {
		e.logger.Warn("ignoring ingest event with unexpected payload", zap.String("type", fmt.Sprintf("%T", evt.Payload)))
		return
	}
	if _, err := e.Import(ctx, batch); err != nil {
		e.logger.Error("failed to import batch", zap.Error(err), zap.String("checkpoint", batch.Checkpoint))
	}
}

// Import writes a batch. Group records, contact messages, group messages and
// media are each written in their own transaction, in that order; the first
// failure stops the batch.
func (e *Engine) Import(ctx context.Context, b Batch) (Completed, error) {
	resume, err := e.lifecycle.BeginImport()
	if err != nil {
		return Completed{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err := resume(); err != nil {
			e.logger.Error("failed to leave import state", zap.Error(err))
		}
	}()

	done := Completed{Checkpoint: b.Checkpoint}
	if len(b.GroupRecords) > 0 {
		if done.GroupRecords, err = e.db.ImportGroups(ctx, b.GroupRecords); err != nil {
			return done, fmt.Errorf("import groups: %w", err)
		}
	}
	if len(b.Contacts) > 0 {
		if done.Contacts, err = e.db.ImportContactMessages(ctx, b.Contacts); err != nil {
			return done, fmt.Errorf("import contact messages: %w", err)
		}
	}
	if len(b.Groups) > 0 {
		if done.Groups, err = e.db.ImportGroupMessages(ctx, b.Groups); err != nil {
			return done, fmt.Errorf("import group messages: %w", err)
		}
	}
	if len(b.Media) > 0 {
		if done.Media, err = e.db.ImportMediaItems(ctx, b.Media); err != nil {
			return done, fmt.Errorf("import media: %w", err)
		}
	}
	if b.Checkpoint != "" {
		if err := e.db.SetInternalOption(ctx, checkpointKey, []byte(b.Checkpoint)); err != nil {
			return done, fmt.Errorf("record checkpoint: %w", err)
		}
	}

	e.logger.Info("import batch completed",
		zap.Int("groups", done.GroupRecords.Imported),
		zap.Int("contact_messages", done.Contacts.Imported),
		zap.Int("group_messages", done.Groups.Imported),
		zap.Int("media", done.Media.Imported),
		zap.String("checkpoint", b.Checkpoint))
	e.bus.Emit(bus.ImportCompleted, done)
	return done, nil
}

// Checkpoint returns the checkpoint of the last completed batch, or "" if
// nothing was imported yet.
func (e *Engine) Checkpoint(ctx context.Context) (string, error) {
	v, err := e.db.InternalOption(ctx, checkpointKey)
	if errors.Is(err, store.ErrUnknownOption) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}
