package onnx

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tokenizer", func() {
	var tok *tokenizer

	BeforeEach(func() {
		tok = newTokenizer(map[string]int{
			"[UNK]":    0,
			"[CLS]":    1,
			"[SEP]":    2,
			"hello":    10,
			"world":    11,
			"play":     12,
			"##ing":    13,
			"##ground": 14,
		})
	})

	It("should read special token ids from the vocabulary", func() {
		Expect(tok.clsID).To(Equal(int64(1)))
		Expect(tok.sepID).To(Equal(int64(2)))
		Expect(tok.unkID).To(Equal(int64(0)))
	})

	It("should map known words directly", func() {
		Expect(tok.tokenize("Hello, world!")).To(Equal([]int64{10, 11}))
	})

	It("should split unknown words into subword pieces", func() {
		Expect(tok.tokenize("playing")).To(Equal([]int64{12, 13}))
		Expect(tok.tokenize("playground")).To(Equal([]int64{12, 14}))
	})

	It("should fall back to the unknown token per unmatched character", func() {
		ids := tok.tokenize("xy")
		Expect(ids).To(Equal([]int64{0, 0}))
	})

	It("should return nothing for empty input", func() {
		Expect(tok.tokenize("   ")).To(BeEmpty())
	})
})
