package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/kv"
	"github.com/halfmoonlabs/engram/pkg/kv/memkv"
	"github.com/halfmoonlabs/engram/pkg/store"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/vector/chromem"
)

var _ = Describe("Store", func() {
	var (
		logger *zap.Logger
		mirror *memkv.Store
		s      *store.Store
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		mirror = memkv.New()

		driver, err := chromem.New(4, logger)
		Expect(err).NotTo(HaveOccurred())

		s, err = store.New(store.Config{
			Dimensions: 4,
			Driver:     driver,
			Mirror:     mirror,
		}, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject zero dimensions", func() {
		_, err := store.New(store.Config{}, logger)
		Expect(err).To(HaveOccurred())
	})

	It("should transition to ready on first use", func() {
		Expect(s.State()).To(Equal(store.StateUninitialized))
		Expect(s.Init(context.Background())).To(Succeed())
		Expect(s.State()).To(Equal(store.StateReady))
	})

	It("should survive concurrent initialization", func() {
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(s.Init(context.Background())).To(Succeed())
			}()
		}
		wg.Wait()
		Expect(s.State()).To(Equal(store.StateReady))
	})

	Describe("UpsertChunks", func() {
		It("should mirror every write to the key-value store", func() {
			chunks := []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "hello", Embedding: []float32{1, 0, 0, 0}, Status: vector.StatusCompleted},
				{ID: "c-2", OwnerID: "alice", SourceName: "s", SequenceIndex: 1,
					Text: "world", Embedding: []float32{0, 1, 0, 0}, Status: vector.StatusCompleted},
			}
			Expect(s.UpsertChunks(context.Background(), chunks)).To(Succeed())
			Expect(mirror.Len()).To(Equal(2))
		})

		It("should be a no-op for an empty batch", func() {
			Expect(s.UpsertChunks(context.Background(), nil)).To(Succeed())
			Expect(s.State()).To(Equal(store.StateUninitialized))
		})
	})

	Describe("DeleteOwner", func() {
		It("should clear the primary store and the mirror", func() {
			chunks := []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "hello", Embedding: []float32{1, 0, 0, 0}, Status: vector.StatusCompleted},
			}
			Expect(s.UpsertChunks(context.Background(), chunks)).To(Succeed())
			Expect(s.DeleteOwner(context.Background(), "alice")).To(Succeed())

			results, err := s.Search(context.Background(), "alice", []float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(mirror.Len()).To(BeZero())
		})
	})

	Describe("Rehydration", func() {
		putMirrorRecord := func(m *memkv.Store, key, owner string, value map[string]any) {
			data, err := json.Marshal(value)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Put(context.Background(), kv.Record{
				Key: key, Owner: owner, Value: data,
			})).To(Succeed())
		}

		It("should restore valid mirror rows into the primary store", func() {
			seeded := memkv.New()
			putMirrorRecord(seeded, "alice::notes::0", "alice", map[string]any{
				"chunk_id": "c-1", "owner_id": "alice", "source_name": "notes",
				"sequence_index": 0, "text": "restored from mirror",
				"embedding": vector.SerializeFloat32([]float32{1, 0, 0, 0}),
				"status":    "completed", "created_at": time.Now(),
			})
			// Wrong byte length: must be skipped, not coerced.
			putMirrorRecord(seeded, "alice::notes::1", "alice", map[string]any{
				"chunk_id": "c-2", "owner_id": "alice", "source_name": "notes",
				"sequence_index": 1, "text": "corrupted",
				"embedding": []byte{1, 2, 3},
				"status":    "completed", "created_at": time.Now(),
			})

			driver, err := chromem.New(4, logger)
			Expect(err).NotTo(HaveOccurred())

			cold, err := store.New(store.Config{
				Dimensions: 4,
				Driver:     driver,
				Mirror:     seeded,
			}, logger)
			Expect(err).NotTo(HaveOccurred())

			results, err := cold.Search(context.Background(), "alice", []float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Text).To(Equal("restored from mirror"))
		})

		It("should rehydrate at most once per process", func() {
			seeded := memkv.New()
			putMirrorRecord(seeded, "alice::notes::0", "alice", map[string]any{
				"chunk_id": "c-1", "owner_id": "alice", "source_name": "notes",
				"sequence_index": 0, "text": "restored",
				"embedding": vector.SerializeFloat32([]float32{1, 0, 0, 0}),
				"status":    "completed", "created_at": time.Now(),
			})

			driver, err := chromem.New(4, logger)
			Expect(err).NotTo(HaveOccurred())

			cold, err := store.New(store.Config{
				Dimensions: 4, Driver: driver, Mirror: seeded,
			}, logger)
			Expect(err).NotTo(HaveOccurred())

			Expect(cold.Init(context.Background())).To(Succeed())
			Expect(cold.Init(context.Background())).To(Succeed())

			count, _, err := cold.Meta(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})
	})

	Describe("Meta", func() {
		It("should compute per-owner aggregates", func() {
			chunks := []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "hello", Embedding: []float32{1, 0, 0, 0}, Status: vector.StatusCompleted},
			}
			Expect(s.UpsertChunks(context.Background(), chunks)).To(Succeed())

			count, totalBytes, err := s.Meta(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(totalBytes).To(BeNumerically(">", 0))
		})
	})
})
