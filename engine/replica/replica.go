// Package replica layers replication onto a local embedded store. Reads and
// writes run against the local file through the embedded engine; a Syncer,
// injected by the caller, pulls frames from the primary. The replication
// transport itself lives behind the Syncer interface.
package replica

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/engine/sqlite"
)

// Engine is an embedded replica: a local database file kept up to date with
// a primary by an injected Syncer.
type Engine struct {
	local  *sqlite.Engine
	syncer engine.Syncer

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// New builds a replica over the local file at path. syncer may be nil, in
// which case the replica behaves as a plain local database and sync
// operations fail.
func New(path string, syncer engine.Syncer) *Engine {
	return &Engine{local: sqlite.New(path), syncer: syncer}
}

// StartPeriodicSync begins syncing every period until Close. It is a no-op
// without a syncer or with a non-positive period.
func (e *Engine) StartPeriodicSync(period time.Duration) {
	if e.syncer == nil || period <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil || e.stopped {
		return
	}
	e.stop = make(chan struct{})
	go e.syncLoop(period, e.stop)
}

func (e *Engine) syncLoop(period time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := e.syncer.Sync(context.Background()); err != nil {
				log.Printf("replica: periodic sync failed: %v", err)
			}
		}
	}
}

func (e *Engine) Connect() (engine.Conn, error) {
	return e.local.Connect()
}

func (e *Engine) Sync(ctx context.Context) (engine.SyncResult, error) {
	if e.syncer == nil {
		return engine.SyncResult{}, engine.Errorf(1, "no replication driver configured for this replica")
	}
	return e.syncer.Sync(ctx)
}

func (e *Engine) SyncUntil(ctx context.Context, replicationIndex uint64) (engine.SyncResult, error) {
	if e.syncer == nil {
		return engine.SyncResult{}, engine.Errorf(1, "no replication driver configured for this replica")
	}
	return e.syncer.SyncUntil(ctx, replicationIndex)
}

func (e *Engine) MaxWriteReplicationIndex() (uint64, bool) {
	if e.syncer == nil {
		return 0, false
	}
	return e.syncer.MaxWriteReplicationIndex()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.stopped = true
	e.mu.Unlock()
	return e.local.Close()
}
