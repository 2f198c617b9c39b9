package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Default special token ids for BERT-family vocabularies, used when the
// vocabulary file does not name them.
const (
	defaultUnkID = 100
	defaultClsID = 101
	defaultSepID = 102
)

// tokenizer performs WordPiece tokenization against a BERT-style
// vocabulary loaded from tokenizer.json.
type tokenizer struct {
	vocab map[string]int
	clsID int64
	sepID int64
	unkID int64
}

func loadTokenizer(path string) (*tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer file: %w", err)
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing tokenizer file: %w", err)
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer file %s has an empty vocabulary", path)
	}

	return newTokenizer(parsed.Model.Vocab), nil
}

func newTokenizer(vocab map[string]int) *tokenizer {
	t := &tokenizer{
		vocab: vocab,
		clsID: defaultClsID,
		sepID: defaultSepID,
		unkID: defaultUnkID,
	}
	if id, ok := vocab["[CLS]"]; ok {
		t.clsID = int64(id)
	}
	if id, ok := vocab["[SEP]"]; ok {
		t.sepID = int64(id)
	}
	if id, ok := vocab["[UNK]"]; ok {
		t.unkID = int64(id)
	}
	return t
}

// tokenize converts text to vocabulary ids, lowercasing first per BERT
// convention. Words missing from the vocabulary are split into the
// longest matching subword pieces.
func (t *tokenizer) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// wordPiece splits a word into greedy longest-prefix subword pieces,
// marking continuations with the ## prefix.
func (t *tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			ids = append(ids, t.unkID)
			start++
		}
	}
	return ids
}
