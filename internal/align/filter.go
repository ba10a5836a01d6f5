package align

import (
	"strings"

	"meetscribe/pkg/model"
)

// Drop reasons recorded for observability.
const (
	DropReasonNoSpeech = "no_speech"
	DropReasonPhrase   = "phrase_match"
	DropReasonEmpty    = "empty"
)

// DefaultNoSpeechThreshold matches the recognizer's usual hallucination
// band: segments it scores above this are almost always silence artifacts.
const DefaultNoSpeechThreshold = 0.6

// DefaultHallucinationPhrases are texts the recognizer is known to emit
// from silence or background noise.
func DefaultHallucinationPhrases() []string {
	return []string{
		"1.5%", "2.5%", "3.5%",
		"subscribe",
		".", "...",
		"♪",
		"[BLANK_AUDIO]",
		"(blank)",
	}
}

// HallucinationFilter removes spurious recognizer segments before speaker
// alignment. A segment is dropped when its no-speech score exceeds the
// threshold, or its trimmed text exactly matches a configured phrase, or
// its text is empty. Kept segments pass through unmodified.
type HallucinationFilter struct {
	threshold float64
	phrases   map[string]struct{}
}

// NewHallucinationFilter builds a filter. Phrase matching is exact after
// trimming and lowercasing.
func NewHallucinationFilter(threshold float64, phrases []string) *HallucinationFilter {
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return &HallucinationFilter{threshold: threshold, phrases: set}
}

// Apply partitions segments into kept ones and drop records. Dropped
// segments never reach the aligner; records surface in the job's progress
// artifact.
func (f *HallucinationFilter) Apply(segments []model.Segment) ([]model.Segment, []model.DropRecord) {
	kept := make([]model.Segment, 0, len(segments))
	var drops []model.DropRecord

	for _, seg := range segments {
		switch {
		case seg.NoSpeechProb > f.threshold:
			drops = append(drops, model.DropRecord{Reason: DropReasonNoSpeech, Segment: seg})
		case strings.TrimSpace(seg.Text) == "":
			drops = append(drops, model.DropRecord{Reason: DropReasonEmpty, Segment: seg})
		case f.isHallucination(seg.Text):
			drops = append(drops, model.DropRecord{Reason: DropReasonPhrase, Segment: seg})
		default:
			kept = append(kept, seg)
		}
	}

	return kept, drops
}

func (f *HallucinationFilter) isHallucination(text string) bool {
	_, ok := f.phrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
