package window_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/halfmoonlabs/engram/pkg/window"
)

var _ = Describe("Window", func() {
	// Each 80-char turn estimates to 80/4 + 4 = 24 tokens.
	turnText := strings.Repeat("x", 80)

	newSmall := func() *window.Window {
		return window.New(window.Config{
			TokenCeiling:          100,
			HysteresisRatio:       0.9,
			CharsPerToken:         4,
			MessageOverheadTokens: 4,
		})
	}

	It("should estimate tokens from character length plus overhead", func() {
		w := newSmall()
		Expect(w.EstimateTokens(turnText)).To(Equal(24))
		Expect(w.EstimateTokens("")).To(Equal(4))
	})

	It("should hold turns without eviction while under the ceiling", func() {
		w := newSmall()
		for range 4 {
			_, evicted := w.AddTurn("user", turnText)
			Expect(evicted).To(BeEmpty())
		}
		Expect(w.Len()).To(Equal(4))
		Expect(w.TokenCount()).To(Equal(96))
	})

	It("should evict oldest turns down to the hysteresis target", func() {
		w := newSmall()
		w.AddTurn("user", turnText)
		w.AddTurn("assistant", turnText)
		w.AddTurn("user", turnText)
		first := w.Turns()[0]

		w.AddTurn("assistant", turnText)
		_, evicted := w.AddTurn("user", turnText)

		// 5 turns estimate to 120 tokens; draining to the 90-token target
		// removes the two oldest.
		Expect(evicted).To(HaveLen(2))
		Expect(evicted[0].ID).To(Equal(first.ID))
		Expect(w.TokenCount()).To(BeNumerically("<=", 90))
		Expect(w.Len()).To(Equal(3))
	})

	It("should never evict the newest turn", func() {
		w := newSmall()
		w.AddTurn("user", turnText)
		w.AddTurn("assistant", turnText)

		huge := strings.Repeat("y", 1000)
		added, evicted := w.AddTurn("user", huge)

		Expect(evicted).To(HaveLen(2))
		Expect(w.Len()).To(Equal(1))
		Expect(w.Turns()[0].ID).To(Equal(added.ID))
		Expect(w.TokenCount()).To(BeNumerically(">", 100))
	})

	It("should assemble the newest turns under the token budget in order", func() {
		w := newSmall()
		// Each turn estimates to 24 tokens.
		w.AddTurn("user", turnText)
		w.AddTurn("assistant", turnText)
		w.AddTurn("user", turnText)

		recent := w.RecentTurns(50)
		Expect(recent).To(HaveLen(2))
		Expect(recent[0].Role).To(Equal("assistant"))
		Expect(recent[1].Role).To(Equal("user"))

		Expect(w.RecentTurns(1000)).To(HaveLen(3))
		Expect(w.RecentTurns(0)).To(HaveLen(3))
	})

	It("should always include the newest turn even when it busts the budget", func() {
		w := newSmall()
		w.AddTurn("user", "short")
		added, _ := w.AddTurn("assistant", strings.Repeat("y", 400))

		recent := w.RecentTurns(10)
		Expect(recent).To(HaveLen(1))
		Expect(recent[0].ID).To(Equal(added.ID))
	})

	It("should return everything from Clear and reset the totals", func() {
		w := newSmall()
		w.AddTurn("user", turnText)
		w.AddTurn("assistant", turnText)

		cleared := w.Clear()
		Expect(cleared).To(HaveLen(2))
		Expect(w.Len()).To(BeZero())
		Expect(w.TokenCount()).To(BeZero())
	})
})
