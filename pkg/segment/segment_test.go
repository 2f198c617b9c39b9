package segment_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/halfmoonlabs/engram/pkg/segment"
)

var _ = Describe("Segment", func() {
	var profile segment.Profile

	BeforeEach(func() {
		profile = segment.Profile{
			MaxLen:      1200,
			Overlap:     200,
			MinDedupLen: 80,
			MaxChunks:   512,
		}
	})

	It("should reject empty input", func() {
		_, _, err := segment.Segment("   \n\t  ", profile)
		Expect(err).To(MatchError(segment.ErrEmptyInput))
	})

	It("should reject a non-positive max length", func() {
		_, _, err := segment.Segment("some text", segment.Profile{MaxLen: 0})
		Expect(err).To(HaveOccurred())
	})

	It("should reject overlap larger than the window", func() {
		_, _, err := segment.Segment("some text", segment.Profile{MaxLen: 100, Overlap: 100})
		Expect(err).To(HaveOccurred())
	})

	It("should return a short input as a single trimmed chunk", func() {
		input := "  The quick brown fox jumps over the lazy dog.  "
		chunks, truncated, err := segment.Segment(input, profile)
		Expect(err).NotTo(HaveOccurred())
		Expect(truncated).To(BeFalse())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0]).To(Equal("The quick brown fox jumps over the lazy dog."))
	})

	It("should cut at a sentence boundary rather than mid-word", func() {
		first := strings.Repeat("abcde ", 14) + "finis."
		second := strings.Repeat("vwxyz ", 14) + "ender!"
		text := first + " " + second

		chunks, _, err := segment.Segment(text, segment.Profile{
			MaxLen:  150,
			Overlap: 20,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks[0]).To(Equal(first))
	})

	It("should cover the whole normalized input", func() {
		var sb strings.Builder
		for i := range 400 {
			fmt.Fprintf(&sb, "w%03d ", i)
		}

		chunks, truncated, err := segment.Segment(sb.String(), segment.Profile{
			MaxLen:  100,
			Overlap: 20,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(truncated).To(BeFalse())

		joined := strings.Join(chunks, " ")
		for i := range 400 {
			Expect(joined).To(ContainSubstring(fmt.Sprintf("w%03d", i)))
		}
	})

	It("should overlap consecutive chunks", func() {
		var sb strings.Builder
		for i := range 200 {
			fmt.Fprintf(&sb, "tok%04d ", i)
		}

		chunks, _, err := segment.Segment(sb.String(), segment.Profile{
			MaxLen:  160,
			Overlap: 40,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(len(chunks)).To(BeNumerically(">", 1))

		for i := 1; i < len(chunks); i++ {
			tail := chunks[i-1][len(chunks[i-1])-10:]
			Expect(chunks[i]).To(ContainSubstring(strings.TrimSpace(tail)))
		}
	})

	It("should drop duplicate chunks above the dedup minimum", func() {
		para := strings.Repeat("the same paragraph repeats itself here ", 4)
		para = strings.TrimSpace(para) + "."
		text := para + "\n\n" + para

		chunks, _, err := segment.Segment(text, segment.Profile{
			MaxLen:      len(para) + 20,
			Overlap:     0,
			MinDedupLen: 80,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
	})

	It("should never emit two identical normalized chunks above the minimum", func() {
		var sb strings.Builder
		for range 50 {
			sb.WriteString("Sentence one about storage. Sentence two about vectors. ")
		}

		chunks, _, err := segment.Segment(sb.String(), segment.Profile{
			MaxLen:      120,
			Overlap:     0,
			MinDedupLen: 40,
		})
		Expect(err).NotTo(HaveOccurred())

		seen := make(map[string]int)
		for _, c := range chunks {
			if len(c) < 40 {
				continue
			}
			normalized := strings.ToLower(strings.Join(strings.Fields(c), " "))
			seen[normalized]++
		}
		for _, count := range seen {
			Expect(count).To(Equal(1))
		}
	})

	It("should truncate at the emission cap", func() {
		var sb strings.Builder
		for i := range 1000 {
			fmt.Fprintf(&sb, "unique%04d ", i)
		}

		chunks, truncated, err := segment.Segment(sb.String(), segment.Profile{
			MaxLen:    100,
			Overlap:   10,
			MaxChunks: 3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(truncated).To(BeTrue())
		Expect(chunks).To(HaveLen(3))
	})

	It("should normalize line endings and whitespace runs", func() {
		chunks, _, err := segment.Segment("a\r\nb\t\tc   d", segment.Profile{MaxLen: 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0]).To(Equal("a\nb c d"))
	})
})

var _ = Describe("ProfileSet", func() {
	It("should pick the short profile for short inputs", func() {
		set := segment.DefaultProfiles()
		Expect(set.For(100).MaxLen).To(Equal(set.Short.MaxLen))
		Expect(set.For(5000).MaxLen).To(Equal(set.Default.MaxLen))
	})
})

var _ = Describe("Redact", func() {
	It("should mask email addresses", func() {
		Expect(segment.Redact("write to jane.doe+x@example.com now")).
			To(Equal("write to [EMAIL] now"))
	})

	It("should mask URLs", func() {
		Expect(segment.Redact("see https://example.com/a?b=c for details")).
			To(Equal("see [URL] for details"))
	})

	It("should mask phone-shaped digit runs", func() {
		Expect(segment.Redact("call +1 (555) 123-4567 today")).
			To(Equal("call [PHONE] today"))
	})

	It("should mask national ID-shaped digit runs", func() {
		Expect(segment.Redact("id 12345678901 on file")).
			To(Equal("id [ID] on file"))
	})

	It("should leave ordinary text untouched", func() {
		Expect(segment.Redact("nothing sensitive here")).
			To(Equal("nothing sensitive here"))
	})
})
