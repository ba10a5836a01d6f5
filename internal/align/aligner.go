package align

import (
	"sort"
	"strings"

	"meetscribe/pkg/model"
)

// Aligner fuses recognizer segments with diarization turns and merges the
// per-source timelines into one chronologically ordered transcript.
type Aligner struct {
	priority map[string]int
}

// NewAligner configures the tie-break order for the multi-source merge:
// sources named earlier win on equal start times, unlisted sources come
// last in input order.
func NewAligner(sourcePriority []string) *Aligner {
	prio := make(map[string]int, len(sourcePriority))
	for i, name := range sourcePriority {
		prio[name] = i
	}
	return &Aligner{priority: prio}
}

// Align assigns a speaker label to every segment using the turns of the
// same source, then merges all sources into one sequence ordered by start
// time. The merge is a stable sort: equal (start, source) pairs keep their
// original per-source order.
func (a *Aligner) Align(segments []model.Segment, turns []model.SpeakerTurn) []model.AlignedSegment {
	bySource := make(map[string][]model.SpeakerTurn)
	for _, turn := range turns {
		bySource[turn.Source] = append(bySource[turn.Source], turn)
	}

	aligned := make([]model.AlignedSegment, 0, len(segments))
	for _, seg := range segments {
		aligned = append(aligned, model.AlignedSegment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			Speaker: assignSpeaker(seg, bySource[seg.Source]),
			Source:  seg.Source,
		})
	}

	sort.SliceStable(aligned, func(i, j int) bool {
		if aligned[i].Start != aligned[j].Start {
			return aligned[i].Start < aligned[j].Start
		}
		return a.rank(aligned[i].Source) < a.rank(aligned[j].Source)
	})

	return aligned
}

func (a *Aligner) rank(source string) int {
	if r, ok := a.priority[source]; ok {
		return r
	}
	return len(a.priority)
}

// assignSpeaker picks the turn with maximum overlap. Ties go to the turn
// with the earliest start; zero overlap against every turn means unknown.
func assignSpeaker(seg model.Segment, turns []model.SpeakerTurn) string {
	best := model.SpeakerUnknown
	bestOverlap := 0.0
	bestStart := 0.0

	for _, turn := range turns {
		o := overlap(seg, turn)
		if o <= 0 {
			continue
		}
		if o > bestOverlap || (o == bestOverlap && turn.Start < bestStart) {
			best = turn.Speaker
			bestOverlap = o
			bestStart = turn.Start
		}
	}

	return best
}

// overlap is the shared duration of a segment and a turn, never negative.
func overlap(seg model.Segment, turn model.SpeakerTurn) float64 {
	start := seg.Start
	if turn.Start > start {
		start = turn.Start
	}
	end := seg.End
	if turn.End < end {
		end = turn.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// RenderTranscript formats the merged sequence as the combined text used
// for the transcription artifact and as summarizer input:
// "[MM:SS] [speaker]: text" per segment.
func RenderTranscript(segments []model.AlignedSegment) string {
	if len(segments) == 0 {
		return "(No speech detected)"
	}

	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, "["+seg.Timestamp()+"] ["+seg.Speaker+"]: "+strings.TrimSpace(seg.Text))
	}
	return strings.Join(lines, "\n\n")
}
