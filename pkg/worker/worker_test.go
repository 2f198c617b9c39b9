package worker_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type blockingStore struct {
	mu       sync.Mutex
	upserted []vector.Chunk
	results  []vector.Result
	byStatus []vector.Chunk
	deleted  []string
	delay    time.Duration
}

func (b *blockingStore) UpsertChunks(_ context.Context, chunks []vector.Chunk) error {
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserted = append(b.upserted, chunks...)
	return nil
}

func (b *blockingStore) Search(_ context.Context, _ string, _ []float32, _ string, _ int) ([]vector.Result, error) {
	time.Sleep(b.delay)
	return b.results, nil
}

func (b *blockingStore) ListByStatus(_ context.Context, _ string, _ vector.Status) ([]vector.Chunk, error) {
	return b.byStatus, nil
}

func (b *blockingStore) DeleteOwner(_ context.Context, ownerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ownerID)
	return nil
}

type singleEmbedder struct {
	calls int
}

func (s *singleEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	return []float32{1, 0}, nil
}

type batchingEmbedder struct {
	singleEmbedder
	batchSizes []int
}

func (b *batchingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batchSizes = append(b.batchSizes, len(texts))
	embs := make([][]float32, len(texts))
	for i := range texts {
		embs[i] = []float32{1, 0}
	}
	return embs, nil
}

var _ = Describe("Worker", func() {
	var (
		store *blockingStore
		w     *worker.Worker
	)

	BeforeEach(func() {
		store = &blockingStore{}
	})

	AfterEach(func() {
		if w != nil {
			w.Close()
			w = nil
		}
	})

	It("should forward writes to the owned store", func() {
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		chunks := []vector.Chunk{{ID: "c-1", OwnerID: "alice", Text: "hello"}}
		Expect(w.UpsertChunks(context.Background(), chunks)).To(Succeed())

		store.mu.Lock()
		defer store.mu.Unlock()
		Expect(store.upserted).To(HaveLen(1))
		Expect(store.upserted[0].ID).To(Equal("c-1"))
	})

	It("should return search results to the awaiting caller", func() {
		store.results = []vector.Result{{Chunk: vector.Chunk{Text: "found"}, Score: 0.9}}
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		results, err := w.Search(context.Background(), "alice", []float32{1}, "query", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Text).To(Equal("found"))
	})

	It("should forward owner deletions to the owned store", func() {
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		Expect(w.DeleteOwner(context.Background(), "alice")).To(Succeed())

		store.mu.Lock()
		defer store.mu.Unlock()
		Expect(store.deleted).To(Equal([]string{"alice"}))
	})

	It("should forward status listings to the owned store", func() {
		store.byStatus = []vector.Chunk{{ID: "c-1", Status: vector.StatusPending}}
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		chunks, err := w.ListByStatus(context.Background(), "alice", vector.StatusPending)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].ID).To(Equal("c-1"))
	})

	It("should embed through the owned model", func() {
		embedder := &singleEmbedder{}
		w = worker.New(store, embedder, worker.Config{}, zap.NewNop())

		emb, err := w.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{1, 0}))
		Expect(embedder.calls).To(Equal(1))
	})

	It("should hand whole batches to a batch-capable model", func() {
		embedder := &batchingEmbedder{}
		w = worker.New(store, embedder, worker.Config{}, zap.NewNop())

		embs, err := w.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(embs).To(HaveLen(3))
		Expect(embedder.batchSizes).To(Equal([]int{3}))
		Expect(embedder.calls).To(BeZero())
	})

	It("should fall back to one call per text without batch support", func() {
		embedder := &singleEmbedder{}
		w = worker.New(store, embedder, worker.Config{}, zap.NewNop())

		embs, err := w.EmbedBatch(context.Background(), []string{"a", "b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(embs).To(HaveLen(2))
		Expect(embedder.calls).To(Equal(2))
	})

	It("should reject embeds when no model is configured", func() {
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		_, err := w.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(worker.ErrNoEmbedder))
	})

	It("should keep concurrent replies on their own channels", func() {
		store.results = []vector.Result{{Chunk: vector.Chunk{Text: "found"}, Score: 0.9}}
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer GinkgoRecover()
				if i%2 == 0 {
					_, err := w.Search(context.Background(), "alice", []float32{1}, "q", 5)
					Expect(err).NotTo(HaveOccurred())
				} else {
					err := w.UpsertChunks(context.Background(), []vector.Chunk{{ID: fmt.Sprintf("c-%d", i)}})
					Expect(err).NotTo(HaveOccurred())
				}
			}(i)
		}
		wg.Wait()
	})

	It("should time out when the store stalls", func() {
		store.delay = 200 * time.Millisecond
		w = worker.New(store, nil, worker.Config{RequestTimeout: 20 * time.Millisecond}, zap.NewNop())

		err := w.UpsertChunks(context.Background(), []vector.Chunk{{ID: "c-1"}})
		Expect(err).To(MatchError(worker.ErrTimeout))
	})

	It("should honor caller context cancellation", func() {
		store.delay = 200 * time.Millisecond
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := w.Search(ctx, "alice", []float32{1}, "q", 5)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should reject requests after Close", func() {
		w = worker.New(store, nil, worker.Config{}, zap.NewNop())
		Expect(w.Close()).To(Succeed())

		err := w.UpsertChunks(context.Background(), []vector.Chunk{{ID: "c-1"}})
		Expect(err).To(MatchError(worker.ErrClosed))
		w = nil
	})
})
