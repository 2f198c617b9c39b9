package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

// funcEmbedder adapts a function to the Embedder interface.
type funcEmbedder struct {
	embed func(ctx context.Context, text string) ([]float32, error)
}

func (f *funcEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embed(ctx, text)
}

func (f *funcEmbedder) Close() error { return nil }

// recordingBatcher records the size of every batch it receives.
type recordingBatcher struct {
	funcEmbedder
	batchSizes []int
}

func (r *recordingBatcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.batchSizes = append(r.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		emb, err := r.embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func echoEmbed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

var _ = Describe("EmbedMany", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	It("should preserve input order", func() {
		p := New(&funcEmbedder{embed: echoEmbed}, Config{Workers: 3}, logger)

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		results, err := p.EmbedMany(context.Background(), texts, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(5))
		for i, text := range texts {
			Expect(results[i][0]).To(Equal(float32(len(text))))
		}
	})

	It("should bound concurrency to the configured worker count", func() {
		var current, peak atomic.Int64
		embedder := &funcEmbedder{embed: func(ctx context.Context, text string) ([]float32, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return []float32{1}, nil
		}}

		p := New(embedder, Config{Workers: 2}, logger)
		texts := make([]string, 12)
		for i := range texts {
			texts[i] = fmt.Sprintf("t-%d", i)
		}

		_, err := p.EmbedMany(context.Background(), texts, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(peak.Load()).To(BeNumerically("<=", 2))
	})

	It("should report serialized, monotonic progress", func() {
		var seen []int
		p := New(&funcEmbedder{embed: echoEmbed}, Config{Workers: 4}, logger)

		texts := make([]string, 10)
		for i := range texts {
			texts[i] = fmt.Sprintf("t-%d", i)
		}

		_, err := p.EmbedMany(context.Background(), texts, func(completed, total int) {
			Expect(total).To(Equal(10))
			seen = append(seen, completed)
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(10))
		for i, c := range seen {
			Expect(c).To(Equal(i + 1))
		}
	})

	It("should stop remaining work after the first failure", func() {
		var calls atomic.Int64
		embedder := &funcEmbedder{embed: func(ctx context.Context, text string) ([]float32, error) {
			calls.Add(1)
			if text == "bad" {
				return nil, fmt.Errorf("embedding backend exploded")
			}
			time.Sleep(time.Millisecond)
			return []float32{1}, nil
		}}

		p := New(embedder, Config{Workers: 1}, logger)
		texts := []string{"ok", "bad", "never-1", "never-2", "never-3"}

		_, err := p.EmbedMany(context.Background(), texts, nil)
		Expect(err).To(MatchError(ContainSubstring("exploded")))
		Expect(calls.Load()).To(BeNumerically("<", int64(len(texts))))
	})

	It("should be a no-op for empty input", func() {
		p := New(&funcEmbedder{embed: echoEmbed}, Config{}, logger)
		results, err := p.EmbedMany(context.Background(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeNil())
	})
})

var _ = Describe("EmbedBatched", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	It("should pin the batch size to one on the fallback backend", func() {
		batcher := &recordingBatcher{funcEmbedder: funcEmbedder{embed: echoEmbed}}
		p := New(batcher, Config{Accelerated: false, BatchCap: 32}, logger)

		texts := []string{"a", "b", "c", "d"}
		results, err := p.EmbedBatched(context.Background(), texts)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(4))
		Expect(batcher.batchSizes).To(Equal([]int{1, 1, 1, 1}))
	})

	It("should embed everything in order on the accelerated backend", func() {
		batcher := &recordingBatcher{funcEmbedder: funcEmbedder{embed: echoEmbed}}
		p := New(batcher, Config{Accelerated: true, BatchCap: 8}, logger)

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh"}
		results, err := p.EmbedBatched(context.Background(), texts)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(8))
		for i, text := range texts {
			Expect(results[i][0]).To(Equal(float32(len(text))))
		}
	})

	It("should fall back to single embeds without batch support", func() {
		p := New(&funcEmbedder{embed: echoEmbed}, Config{Accelerated: true}, logger)
		results, err := p.EmbedBatched(context.Background(), []string{"a", "bb"})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
	})
})

var _ = Describe("nextBatchSize", func() {
	cfg := Config{
		Accelerated:     true,
		BatchCap:        32,
		GrowThreshold:   0.10,
		ShrinkThreshold: 0.25,
	}

	It("should double on a clear improvement with enough work left", func() {
		Expect(nextBatchSize(4, 1.0, 0.8, 100, cfg)).To(Equal(8))
	})

	It("should not grow when the improvement is marginal", func() {
		Expect(nextBatchSize(4, 1.0, 0.95, 100, cfg)).To(Equal(4))
	})

	It("should not grow when too little work remains", func() {
		Expect(nextBatchSize(4, 1.0, 0.5, 7, cfg)).To(Equal(4))
	})

	It("should halve on a sharp regression", func() {
		Expect(nextBatchSize(8, 1.0, 1.5, 100, cfg)).To(Equal(4))
	})

	It("should tolerate a mild regression", func() {
		Expect(nextBatchSize(8, 1.0, 1.2, 100, cfg)).To(Equal(8))
	})

	It("should never exceed the cap", func() {
		Expect(nextBatchSize(32, 1.0, 0.5, 1000, cfg)).To(Equal(32))
	})

	It("should never drop below one", func() {
		Expect(nextBatchSize(1, 1.0, 10.0, 100, cfg)).To(Equal(1))
	})

	It("should hold steady on the first measurement", func() {
		Expect(nextBatchSize(4, 0, 0.5, 100, cfg)).To(Equal(4))
	})

	It("should stay at one on the fallback backend", func() {
		fallback := cfg
		fallback.Accelerated = false
		Expect(nextBatchSize(4, 1.0, 0.5, 100, fallback)).To(Equal(1))
	})
})
