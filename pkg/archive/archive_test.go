package archive_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/archive"
	"github.com/halfmoonlabs/engram/pkg/segment"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/window"
)

type fakeStore struct {
	upserted      []vector.Chunk
	completed     []vector.Chunk
	searchResults []vector.Result
	searchErr     error
}

func (f *fakeStore) UpsertChunks(_ context.Context, chunks []vector.Chunk) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, _ string, _ int) ([]vector.Result, error) {
	return f.searchResults, f.searchErr
}

func (f *fakeStore) ListByStatus(_ context.Context, _ string, status vector.Status) ([]vector.Chunk, error) {
	if status != vector.StatusCompleted {
		return nil, nil
	}
	return f.completed, nil
}

type fakeRemote struct {
	upserted      []vector.Chunk
	upsertErr     error
	searchResults []vector.Result
	searchCalls   int
	recentChunks  []vector.Chunk
	recentCalls   int
}

func (f *fakeRemote) UpsertChunks(_ context.Context, chunks []vector.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeRemote) Search(_ context.Context, _ string, _ []float32, _ int) ([]vector.Result, error) {
	f.searchCalls++
	return f.searchResults, nil
}

func (f *fakeRemote) RecentByOwner(_ context.Context, _ string, _ int) ([]vector.Chunk, error) {
	f.recentCalls++
	return f.recentChunks, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (fixedEmbedder) Close() error { return nil }

func result(text string, score float32) vector.Result {
	return vector.Result{Chunk: vector.Chunk{Text: text}, Score: score}
}

var _ = Describe("Bridge", func() {
	var (
		logger *zap.Logger
		store  *fakeStore
		remote *fakeRemote
	)

	newBridge := func(cfg archive.Config) *archive.Bridge {
		b, err := archive.New(cfg, store, remote, fixedEmbedder{}, nil, logger)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	BeforeEach(func() {
		logger = zap.NewNop()
		store = &fakeStore{}
		remote = &fakeRemote{}
	})

	Describe("Archive", func() {
		It("should be a no-op for an empty eviction", func() {
			b := newBridge(archive.Config{})
			Expect(b.Archive(context.Background(), "alice", nil)).To(Succeed())
			Expect(store.upserted).To(BeEmpty())
		})

		It("should store role-tagged chunks locally and remotely", func() {
			b := newBridge(archive.Config{})
			turns := []window.Turn{
				{Role: "user", Content: "what is the capital of France?"},
				{Role: "assistant", Content: "Paris."},
			}
			Expect(b.Archive(context.Background(), "alice", turns)).To(Succeed())

			Expect(store.upserted).NotTo(BeEmpty())
			first := store.upserted[0]
			Expect(first.OwnerID).To(Equal("alice"))
			Expect(first.Status).To(Equal(vector.StatusCompleted))
			Expect(first.Text).To(ContainSubstring("user: what is the capital"))
			Expect(first.Text).To(ContainSubstring("assistant: Paris."))
			Expect(first.Embedding).To(Equal([]float32{1, 0, 0, 0}))

			Expect(remote.upserted).To(HaveLen(len(store.upserted)))
		})

		It("should tolerate remote replication failures", func() {
			remote.upsertErr = fmt.Errorf("qdrant unreachable")
			b := newBridge(archive.Config{})
			turns := []window.Turn{{Role: "user", Content: "remember this"}}
			Expect(b.Archive(context.Background(), "alice", turns)).To(Succeed())
			Expect(store.upserted).NotTo(BeEmpty())
		})

		It("should split long conversations into overlapping chunks", func() {
			b := newBridge(archive.Config{
				Chunking: segment.Profile{MaxLen: 200, Overlap: 40, MinDedupLen: 80, MaxChunks: 64},
			})

			var content strings.Builder
			for i := range 120 {
				fmt.Fprintf(&content, "fact number %d about the project. ", i)
			}
			turns := []window.Turn{{Role: "user", Content: content.String()}}
			Expect(b.Archive(context.Background(), "alice", turns)).To(Succeed())
			Expect(len(store.upserted)).To(BeNumerically(">", 1))

			for i, c := range store.upserted {
				Expect(c.SequenceIndex).To(Equal(i))
				Expect(c.SourceName).To(Equal(store.upserted[0].SourceName))
			}
		})
	})

	Describe("RelevantContext", func() {
		It("should assemble local results above the similarity floor", func() {
			store.searchResults = []vector.Result{
				result("highly relevant", 0.9),
				result("barely related", 0.1),
			}
			b := newBridge(archive.Config{MinSimilarity: 0.3})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "relevant?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(text).To(Equal("highly relevant"))
			Expect(remote.searchCalls).To(BeZero())
		})

		It("should keep results sitting exactly on the similarity floor", func() {
			store.searchResults = []vector.Result{
				result("on the line", 0.3),
				result("just under", 0.29),
			}
			b := newBridge(archive.Config{MinSimilarity: 0.3})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "edge?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(text).To(Equal("on the line"))
		})

		It("should fall through to the remote tier when local has nothing", func() {
			remote.searchResults = []vector.Result{result("from the remote store", 0.8)}
			b := newBridge(archive.Config{})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "anything?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(text).To(Equal("from the remote store"))
			Expect(remote.searchCalls).To(Equal(1))
		})

		It("should report no context when nothing clears the floor", func() {
			store.searchResults = []vector.Result{result("noise", 0.05)}
			remote.searchResults = []vector.Result{result("more noise", 0.1)}
			b := newBridge(archive.Config{MinSimilarity: 0.3})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "anything?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(text).To(BeEmpty())
			Expect(remote.recentCalls).To(Equal(1))
		})

		It("should surface recently archived chunks when similarity finds nothing", func() {
			remote.recentChunks = []vector.Chunk{{Text: "yesterday we picked postgres"}}
			b := newBridge(archive.Config{})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "anything?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(text).To(Equal("yesterday we picked postgres"))
		})

		It("should not consult the recency read when the remote search scores", func() {
			remote.searchResults = []vector.Result{result("from the remote store", 0.8)}
			remote.recentChunks = []vector.Chunk{{Text: "stale recency"}}
			b := newBridge(archive.Config{})

			text, _, err := b.RelevantContext(context.Background(), "alice", "anything?")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("from the remote store"))
			Expect(remote.recentCalls).To(BeZero())
		})

		It("should respect the context character bound", func() {
			store.searchResults = []vector.Result{
				result(strings.Repeat("a", 60), 0.9),
				result(strings.Repeat("b", 60), 0.8),
				result(strings.Repeat("c", 10), 0.7),
			}
			b := newBridge(archive.Config{MaxContextChars: 80})

			text, ok, err := b.RelevantContext(context.Background(), "alice", "q")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			// The second chunk would overflow; the third still fits.
			Expect(text).To(Equal(strings.Repeat("a", 60) + "\n\n" + strings.Repeat("c", 10)))
		})
	})

	Describe("Export", func() {
		It("should upload the owner's completed chunks", func() {
			store.completed = []vector.Chunk{
				{ID: "c-1", OwnerID: "alice", Text: "one", Status: vector.StatusCompleted},
				{ID: "c-2", OwnerID: "alice", Text: "two", Status: vector.StatusCompleted},
			}
			b := newBridge(archive.Config{})

			count, err := b.Export(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
			Expect(remote.upserted).To(HaveLen(2))
		})

		It("should upload nothing when the owner has no completed chunks", func() {
			b := newBridge(archive.Config{})

			count, err := b.Export(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
			Expect(remote.upserted).To(BeEmpty())
		})

		It("should fail without a remote store", func() {
			b, err := archive.New(archive.Config{}, store, nil, fixedEmbedder{}, nil, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			_, err = b.Export(context.Background(), "alice")
			Expect(err).To(MatchError(ContainSubstring("no remote store")))
		})
	})
})
