// Package segment splits raw text into bounded, overlapping, deduplicated
// chunks suitable for embedding. Segmentation is a pure function of its
// input: the same text and profile always produce the same chunks.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyInput is returned when the input text is empty after
	// normalization. Surfaced to the user, never retried.
	ErrEmptyInput = errors.New("input text is empty")
)

// sentence-ending punctuation or newline, followed by whitespace, marks a
// candidate cut point when a window would otherwise end mid-sentence.
var boundaryPattern = regexp.MustCompile(`[.!?\n]\s`)

var (
	lineEndings   = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	newlineRuns   = regexp.MustCompile(`\n{3,}`)
	allWhitespace = regexp.MustCompile(`\s+`)
)

const (
	// boundaryLookback is how far back from a window end the segmenter
	// searches for a sentence boundary before hard-cutting.
	boundaryLookback = 120

	// minCutPos is the minimum distance into a window a boundary cut must
	// land; earlier boundaries would produce degenerate fragments. For
	// windows smaller than twice this, half the window is used instead.
	minCutPos = 100
)

// Profile is one segmentation calibration. Larger chunks trade per-chunk
// relevance precision for fewer round trips and more coherent context.
type Profile struct {
	// MaxLen is the window size in characters.
	MaxLen int

	// Overlap is how many characters consecutive chunks share.
	Overlap int

	// MinDedupLen is the minimum chunk length subject to deduplication.
	// Shorter chunks bypass dedup entirely.
	MinDedupLen int

	// MaxChunks caps emissions; text past the cap is silently dropped and
	// the truncated flag reports it to the caller.
	MaxChunks int
}

// ProfileSet selects between the short-text and default calibrations by
// total input length.
type ProfileSet struct {
	Default        Profile
	Short          Profile
	ShortThreshold int
}

// DefaultProfiles mirrors the configuration defaults.
func DefaultProfiles() ProfileSet {
	return ProfileSet{
		Default:        Profile{MaxLen: 1200, Overlap: 200, MinDedupLen: 80, MaxChunks: 512},
		Short:          Profile{MaxLen: 400, Overlap: 60, MinDedupLen: 80, MaxChunks: 512},
		ShortThreshold: 2000,
	}
}

// For returns the profile calibrated for an input of the given length.
func (s ProfileSet) For(inputLen int) Profile {
	if inputLen < s.ShortThreshold {
		return s.Short
	}
	return s.Default
}

// Segment splits text into chunks of at most p.MaxLen characters,
// preferring sentence boundaries, with p.Overlap characters of continuity
// between consecutive chunks. Near-identical chunks are dropped. The
// returned flag reports whether the emission cap truncated the input.
func Segment(text string, p Profile) ([]string, bool, error) {
	if p.MaxLen <= 0 {
		return nil, false, fmt.Errorf("profile max length must be positive, got %d", p.MaxLen)
	}
	if p.Overlap < 0 || p.Overlap >= p.MaxLen {
		return nil, false, fmt.Errorf("profile overlap %d out of range for max length %d", p.Overlap, p.MaxLen)
	}

	normalized := Normalize(text)
	if normalized == "" {
		return nil, false, ErrEmptyInput
	}

	var chunks []string
	seen := make(map[string]struct{})
	truncated := false

	start := 0
	for start < len(normalized) {
		if p.MaxChunks > 0 && len(chunks) >= p.MaxChunks {
			truncated = true
			break
		}

		end := start + p.MaxLen
		if end >= len(normalized) {
			end = len(normalized)
		} else {
			end = cutPoint(normalized, start, end)
		}

		chunk := strings.TrimSpace(normalized[start:end])
		if chunk != "" && !isDuplicate(chunk, p.MinDedupLen, seen) {
			chunks = append(chunks, chunk)
		}

		if end == len(normalized) {
			break
		}

		next := end - p.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, truncated, nil
}

// Normalize collapses line endings, whitespace runs and trims the text.
func Normalize(text string) string {
	text = lineEndings.Replace(text)
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// cutPoint searches backward from end for the last sentence boundary within
// the lookback range. Boundaries too close to the window start are rejected
// so cuts never produce degenerate fragments; in that case the window is
// hard-cut at end.
func cutPoint(text string, start, end int) int {
	lookbackStart := end - boundaryLookback
	if lookbackStart < start {
		lookbackStart = start
	}

	window := text[lookbackStart:end]
	locs := boundaryPattern.FindAllStringIndex(window, -1)
	if len(locs) == 0 {
		return end
	}

	// Position just after the punctuation of the last boundary found.
	cut := lookbackStart + locs[len(locs)-1][0] + 1

	minPos := minCutPos
	if half := (end - start) / 2; half < minPos {
		minPos = half
	}
	if cut-start <= minPos {
		return end
	}
	return cut
}

// isDuplicate reports whether an equivalent chunk was already emitted in
// this call. Chunks below minLen bypass dedup: it defeats itself on very
// short, highly similar fragments.
func isDuplicate(chunk string, minLen int, seen map[string]struct{}) bool {
	if len(chunk) < minLen {
		return false
	}

	normalized := strings.ToLower(allWhitespace.ReplaceAllString(chunk, " "))
	sum := sha256.Sum256([]byte(normalized))
	key := hex.EncodeToString(sum[:])

	if _, ok := seen[key]; ok {
		return true
	}
	seen[key] = struct{}{}
	return false
}
