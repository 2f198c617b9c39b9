// Package worker moves vector store and embedding traffic off the
// caller's goroutine.
//
// A single background goroutine owns the store and the embedding model;
// callers hand it typed requests over a channel and wait on a
// per-request reply channel. The reply channel doubles as the request's
// correlation: there is no id to match because each response can only
// arrive where it was awaited. Every wait is bounded by the caller's
// context and the configured request timeout.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
)

// DefaultRequestTimeout bounds how long a caller waits on the worker.
const DefaultRequestTimeout = 30 * time.Second

// ErrTimeout is returned when the worker does not answer in time.
var ErrTimeout = errors.New("store worker request timed out")

// ErrClosed is returned for requests after Close.
var ErrClosed = errors.New("store worker is closed")

// ErrNoEmbedder is returned for embed requests when the worker was built
// without an embedding model.
var ErrNoEmbedder = errors.New("store worker has no embedder configured")

// Store is the storage surface the worker owns.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []vector.Chunk) error
	Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error)
	ListByStatus(ctx context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error)
	DeleteOwner(ctx context.Context, ownerID string) error
}

// Embedder is the embedding surface the worker owns. May be nil when the
// worker only fronts storage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// batchEmbedder is detected at runtime so batch-capable models embed a
// whole slice in one boundary crossing.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for the worker.
type Config struct {
	// RequestTimeout bounds each request. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

type upsertRequest struct {
	chunks []vector.Chunk
	reply  chan error
}

type searchRequest struct {
	ownerID   string
	query     []float32
	queryText string
	topK      int
	reply     chan searchReply
}

type searchReply struct {
	results []vector.Result
	err     error
}

type deleteOwnerRequest struct {
	ownerID string
	reply   chan error
}

type listByStatusRequest struct {
	ownerID string
	status  vector.Status
	reply   chan listByStatusReply
}

type listByStatusReply struct {
	chunks []vector.Chunk
	err    error
}

type embedRequest struct {
	text  string
	reply chan embedReply
}

type embedReply struct {
	embedding []float32
	err       error
}

type embedBatchRequest struct {
	texts []string
	reply chan embedBatchReply
}

type embedBatchReply struct {
	embeddings [][]float32
	err        error
}

// Worker serializes store and embedder access behind a background
// goroutine.
type Worker struct {
	store    Store
	embedder Embedder
	timeout  time.Duration
	logger   *zap.Logger
	requests chan any
	done     chan struct{}
}

// New creates and starts a worker. embedder may be nil; embed requests
// then fail with ErrNoEmbedder.
func New(store Store, embedder Embedder, cfg Config, logger *zap.Logger) *Worker {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	w := &Worker{
		store:    store,
		embedder: embedder,
		timeout:  timeout,
		logger:   logger,
		requests: make(chan any, 16),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case <-w.done:
			return
		case req := <-w.requests:
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			w.handle(ctx, req)
			cancel()
		}
	}
}

func (w *Worker) handle(ctx context.Context, req any) {
	switch r := req.(type) {
	case upsertRequest:
		r.reply <- w.store.UpsertChunks(ctx, r.chunks)
	case searchRequest:
		results, err := w.store.Search(ctx, r.ownerID, r.query, r.queryText, r.topK)
		r.reply <- searchReply{results: results, err: err}
	case deleteOwnerRequest:
		r.reply <- w.store.DeleteOwner(ctx, r.ownerID)
	case listByStatusRequest:
		chunks, err := w.store.ListByStatus(ctx, r.ownerID, r.status)
		r.reply <- listByStatusReply{chunks: chunks, err: err}
	case embedRequest:
		if w.embedder == nil {
			r.reply <- embedReply{err: ErrNoEmbedder}
			return
		}
		emb, err := w.embedder.Embed(ctx, r.text)
		r.reply <- embedReply{embedding: emb, err: err}
	case embedBatchRequest:
		if w.embedder == nil {
			r.reply <- embedBatchReply{err: ErrNoEmbedder}
			return
		}
		embs, err := w.embedBatch(ctx, r.texts)
		r.reply <- embedBatchReply{embeddings: embs, err: err}
	default:
		w.logger.Error("store worker received unknown request type")
	}
}

// embedBatch embeds a slice in one model call when the model supports
// it, one call per text otherwise.
func (w *Worker) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b, ok := w.embedder.(batchEmbedder); ok {
		return b.EmbedBatch(ctx, texts)
	}
	embs := make([][]float32, len(texts))
	for i, t := range texts {
		emb, err := w.embedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		embs[i] = emb
	}
	return embs, nil
}

// submit sends a request and returns false if the worker is closed or
// the context expires first.
func (w *Worker) submit(ctx context.Context, req any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	select {
	case w.requests <- req:
		return nil
	case <-w.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertChunks forwards a write to the worker goroutine and waits for
// its reply.
func (w *Worker) UpsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	reply := make(chan error, 1)
	if err := w.submit(ctx, upsertRequest{chunks: chunks, reply: reply}); err != nil {
		return err
	}
	return w.awaitErr(ctx, reply)
}

// Search forwards a query to the worker goroutine and waits for its
// reply.
func (w *Worker) Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error) {
	reply := make(chan searchReply, 1)
	if err := w.submit(ctx, searchRequest{
		ownerID:   ownerID,
		query:     query,
		queryText: queryText,
		topK:      topK,
		reply:     reply,
	}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.timeout):
		return nil, ErrTimeout
	}
}

// DeleteOwner forwards an owner wipe to the worker goroutine and waits
// for its reply.
func (w *Worker) DeleteOwner(ctx context.Context, ownerID string) error {
	reply := make(chan error, 1)
	if err := w.submit(ctx, deleteOwnerRequest{ownerID: ownerID, reply: reply}); err != nil {
		return err
	}
	return w.awaitErr(ctx, reply)
}

// ListByStatus forwards a status listing to the worker goroutine and
// waits for its reply.
func (w *Worker) ListByStatus(ctx context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error) {
	reply := make(chan listByStatusReply, 1)
	if err := w.submit(ctx, listByStatusRequest{ownerID: ownerID, status: status, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.chunks, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.timeout):
		return nil, ErrTimeout
	}
}

// Embed forwards one embedding to the worker goroutine and waits for
// its reply.
func (w *Worker) Embed(ctx context.Context, text string) ([]float32, error) {
	reply := make(chan embedReply, 1)
	if err := w.submit(ctx, embedRequest{text: text, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.embedding, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.timeout):
		return nil, ErrTimeout
	}
}

// EmbedBatch forwards a batch embedding to the worker goroutine and
// waits for its reply.
func (w *Worker) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reply := make(chan embedBatchReply, 1)
	if err := w.submit(ctx, embedBatchRequest{texts: texts, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.embeddings, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.timeout):
		return nil, ErrTimeout
	}
}

func (w *Worker) awaitErr(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.timeout):
		return ErrTimeout
	}
}

// Close stops the worker. In-flight requests finish; later requests fail
// with ErrClosed. The store and embedder are owned by their builders and
// are not closed here.
func (w *Worker) Close() error {
	close(w.done)
	return nil
}
