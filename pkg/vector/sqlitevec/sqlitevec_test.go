package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	newDriver := func(disableIndex bool) *sqlitevec.Driver {
		driver, err := sqlitevec.New(sqlitevec.Config{
			DBPath:       ":memory:",
			Dimensions:   4,
			DisableIndex: disableIndex,
		}, logger)
		Expect(err).NotTo(HaveOccurred())
		return driver
	}

	Describe("New", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.New(sqlitevec.Config{Dimensions: 4}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimensions are not specified", func() {
			_, err := sqlitevec.New(sqlitevec.Config{DBPath: ":memory:"}, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})

	Describe("Upsert", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(true)
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given no chunks", func() {
			Expect(driver.Upsert(context.Background(), nil)).To(Succeed())
		})

		It("should store and list a chunk", func() {
			chunk := vector.Chunk{
				ID:            "c-1",
				OwnerID:       "alice",
				SourceName:    "notes.txt",
				SequenceIndex: 0,
				Text:          "vectors are fun",
				Embedding:     []float32{0.1, 0.2, 0.3, 0.4},
			}
			Expect(driver.Upsert(context.Background(), []vector.Chunk{chunk})).To(Succeed())

			stored, err := driver.ListByStatus(context.Background(), "alice", vector.StatusCompleted)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Text).To(Equal("vectors are fun"))
			Expect(stored[0].Embedding).To(HaveLen(4))
		})

		It("should overwrite rather than duplicate on re-ingestion", func() {
			chunks := []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", SourceName: "notes.txt", SequenceIndex: 0,
					Text: "first", Embedding: []float32{0.1, 0.1, 0.1, 0.1}},
				{ID: "c-2", OwnerID: "alice", SourceName: "notes.txt", SequenceIndex: 1,
					Text: "second", Embedding: []float32{0.2, 0.2, 0.2, 0.2}},
			}
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())

			count, _, err := driver.Meta(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})

		It("should skip rows with wrong-dimension embeddings and keep the rest", func() {
			chunks := []vector.Chunk{
				{ID: "bad", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "bad", Embedding: []float32{0.1, 0.2}},
				{ID: "good", OwnerID: "alice", SourceName: "s", SequenceIndex: 1,
					Text: "good", Embedding: []float32{0.1, 0.2, 0.3, 0.4}},
			}
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())

			stored, err := driver.ListByStatus(context.Background(), "alice", vector.StatusCompleted)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].ID).To(Equal("good"))
		})
	})

	Describe("Search without the similarity index", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(true)

			chunks := []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "the cat sat on the mat", Embedding: []float32{1, 0, 0, 0}},
				{ID: "c-2", OwnerID: "alice", SourceName: "s", SequenceIndex: 1,
					Text: "dogs chase cars", Embedding: []float32{0, 1, 0, 0}},
				{ID: "c-3", OwnerID: "alice", SourceName: "s", SequenceIndex: 2,
					Text: "a mixture of things", Embedding: []float32{0.7, 0.7, 0, 0}},
				{ID: "other", OwnerID: "bob", SourceName: "s", SequenceIndex: 0,
					Text: "belongs to bob", Embedding: []float32{1, 0, 0, 0}},
			}
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should report the index unavailable", func() {
			Expect(driver.IndexAvailable()).To(BeFalse())
		})

		It("should rank by descending score", func() {
			results, err := driver.Search(context.Background(), "alice",
				[]float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("c-1"))
			for i := 1; i < len(results); i++ {
				Expect(results[i].Score).To(BeNumerically("<=", results[i-1].Score))
			}
		})

		It("should scope results to the owner", func() {
			results, err := driver.Search(context.Background(), "bob",
				[]float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("other"))
		})

		It("should return empty results for an owner with no chunks", func() {
			results, err := driver.Search(context.Background(), "nobody",
				[]float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("should boost chunks sharing query terms", func() {
			// c-1 and c-2 tie on dot product; the lexical bonus breaks
			// the tie in favor of the chunk sharing query vocabulary.
			results, err := driver.Search(context.Background(), "alice",
				[]float32{0.5, 0.5, 0, 0}, "dogs chase", 10)
			Expect(err).NotTo(HaveOccurred())

			pos := make(map[string]int, len(results))
			for i, r := range results {
				pos[r.ID] = i
			}
			Expect(pos["c-2"]).To(BeNumerically("<", pos["c-1"]))
		})

		It("should reject a query vector of the wrong dimension", func() {
			_, err := driver.Search(context.Background(), "alice",
				[]float32{1, 0}, "", 10)
			Expect(err).To(MatchError(vector.ErrBadEmbedding))
		})

		It("should respect topK", func() {
			results, err := driver.Search(context.Background(), "alice",
				[]float32{1, 0, 0, 0}, "", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})
	})

	Describe("Corrupted embeddings", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(true)

			// A completed row with no embedding blob models a corrupted
			// store entry: invisible to similarity search, visible to
			// status listings.
			chunks := []vector.Chunk{
				{ID: "corrupt", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "corrupted row", Status: vector.StatusCompleted},
				{ID: "healthy", OwnerID: "alice", SourceName: "s", SequenceIndex: 1,
					Text: "healthy row", Embedding: []float32{1, 0, 0, 0}},
			}
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should exclude corrupted rows from similarity results", func() {
			results, err := driver.Search(context.Background(), "alice",
				[]float32{1, 0, 0, 0}, "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("healthy"))
		})

		It("should still list corrupted rows by status", func() {
			stored, err := driver.ListByStatus(context.Background(), "alice", vector.StatusCompleted)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(2))
		})
	})

	Describe("DeleteOwner", func() {
		It("should remove all rows for the owner only", func() {
			driver := newDriver(true)
			defer driver.Close()

			chunks := []vector.Chunk{
				{ID: "a", OwnerID: "alice", SourceName: "s", SequenceIndex: 0,
					Text: "a", Embedding: []float32{1, 0, 0, 0}},
				{ID: "b", OwnerID: "bob", SourceName: "s", SequenceIndex: 0,
					Text: "b", Embedding: []float32{0, 1, 0, 0}},
			}
			Expect(driver.Upsert(context.Background(), chunks)).To(Succeed())
			Expect(driver.DeleteOwner(context.Background(), "alice")).To(Succeed())

			aliceCount, _, err := driver.Meta(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(aliceCount).To(BeZero())

			bobCount, _, err := driver.Meta(context.Background(), "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(bobCount).To(Equal(1))
		})
	})
})
