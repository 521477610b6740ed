// Package synccontext implements the SyncContext coordinator: the
// serialized local-mutation path, the push and pull runners, purge, and
// cancellation, wired onto three task lanes — the writer domain, the
// push/pull lane, and the callback executor.
package synccontext

import (
	"context"
	"fmt"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/queue"
	"github.com/erauner12/syncengine-go/internal/remote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PushHandler, when set, replaces the default RemoteClient call PushRunner
// would otherwise make for an operation.
type PushHandler func(ctx context.Context, op *model.Operation, rc remote.RemoteClient) (model.Item, error)

// Option configures a SyncContext at construction time.
type Option func(*SyncContext)

// WithPushHandler installs a user-supplied push handler.
func WithPushHandler(h PushHandler) Option {
	return func(sc *SyncContext) { sc.pushHandler = h }
}

// WithCallbackWorkers overrides the callback executor's worker count
// (default 4).
func WithCallbackWorkers(n int) Option {
	return func(sc *SyncContext) { sc.callbackWorkers = n }
}

// WithPullPageSize overrides the default page size PullRunner requests when
// the caller's query leaves Top unset.
func WithPullPageSize(n int) Option {
	return func(sc *SyncContext) {
		if n > 0 {
			sc.defaultPageSize = n
		}
	}
}

// SyncContext is the coordinator: it owns the operation queue, the writer
// domain, the push/pull lane, and the callback executor, and routes local
// mutations through condensation.
type SyncContext struct {
	ds datasource.DataSource
	rc remote.RemoteClient
	q  *queue.Queue

	writer    *serialExecutor
	lane      *serialExecutor
	callbacks *callbackPool

	pushHandler     PushHandler
	callbackWorkers int
	defaultPageSize int

	log zerolog.Logger
}

// New constructs a SyncContext. ds must not be nil (New returns
// MissingDataSourceError otherwise); rc may be nil for embedders that only
// ever use the local store (Push/Pull then fail with a transport error on
// first remote call).
func New(ctx context.Context, ds datasource.DataSource, rc remote.RemoteClient, opts ...Option) (*SyncContext, error) {
	if ds == nil {
		return nil, &MissingDataSourceError{}
	}
	q, err := queue.New(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("load operation queue: %w", err)
	}

	sc := &SyncContext{
		ds:              ds,
		rc:              rc,
		q:               q,
		callbackWorkers: 4,
		defaultPageSize: 50,
		log:             log.With().Str("component", "synccontext").Logger(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	sc.writer = newSerialExecutor()
	sc.lane = newSerialExecutor()
	sc.callbacks = newCallbackPool(sc.callbackWorkers)
	return sc, nil
}

// Close drains and stops all three task lanes. Outstanding Push/Pull tasks
// already submitted to the lane still run to completion; Close waits for
// them.
func (sc *SyncContext) Close() {
	sc.lane.close()
	sc.writer.close()
	sc.callbacks.close()
}

// Handle represents an outstanding Push or Pull task; Cancel requests
// cooperative cancellation, observed between suspension points.
type Handle struct {
	cancel context.CancelFunc
}

// Cancel requests cancellation of the task this handle was returned for.
func (h *Handle) Cancel() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

func (sc *SyncContext) inWriter(ctx context.Context, fn func(ctx context.Context) error) error {
	return sc.writer.submit(ctx, fn)
}
