package browser

import (
	"math/rand"
	"strings"
	"time"
	"unicode"

	"commentbot/packages/config"
)

// KeyStep is one unit of the human typing plan: an optional pause, optional
// backspaces (typo correction), then literal keys.
type KeyStep struct {
	Delay      time.Duration
	Backspaces int
	Keys       string
}

// neighbors maps a key to plausible mistypes on a QWERTY layout.
var neighbors = map[rune]rune{
	'a': 's', 's': 'a', 'd': 'f', 'f': 'g', 'g': 'h', 'h': 'j',
	'e': 'r', 'r': 't', 't': 'y', 'i': 'o', 'o': 'p', 'n': 'm',
	'c': 'v', 'u': 'i', 'l': 'k', 'm': 'n',
}

// Chunks splits text at sentence and clause boundaries so typing lands in
// natural bursts rather than one even stream.
func Chunks(text string) []string {
	var chunks []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if isClauseBoundary(r) {
			chunks = append(chunks, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

func isClauseBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ',', ';', '\n':
		return true
	}
	return false
}

// BuildTypingPlan turns text into a pacing plan: variable per-character delay,
// punctuation-aware pauses, a small injected-typo-and-correct probability per
// chunk, and a randomized pre-submit pause at the end.
func BuildTypingPlan(text string, p config.Pacing, rng *rand.Rand) []KeyStep {
	var plan []KeyStep
	for _, chunk := range Chunks(text) {
		typoAt := -1
		if p.TypoRate > 0 && rng.Float64() < p.TypoRate {
			typoAt = rng.Intn(len([]rune(chunk)))
		}
		for i, r := range []rune(chunk) {
			delay := randRange(rng, p.CharDelayMinMs, p.CharDelayMaxMs)
			if isClauseBoundary(r) {
				delay += randRange(rng, p.PunctPauseMinMs, p.PunctPauseMaxMs)
			}
			if i == typoAt && unicode.IsLower(r) {
				wrong, ok := neighbors[r]
				if ok {
					plan = append(plan, KeyStep{Delay: delay, Keys: string(wrong)})
					plan = append(plan, KeyStep{
						Delay:      randRange(rng, p.PunctPauseMinMs, p.PunctPauseMaxMs),
						Backspaces: 1,
						Keys:       string(r),
					})
					continue
				}
			}
			plan = append(plan, KeyStep{Delay: delay, Keys: string(r)})
		}
	}
	// Pre-submit hesitation.
	plan = append(plan, KeyStep{Delay: randRange(rng, p.PreSubmitMinMs, p.PreSubmitMaxMs)})
	return plan
}

func randRange(rng *rand.Rand, minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rng.Intn(maxMs-minMs)) * time.Millisecond
}
