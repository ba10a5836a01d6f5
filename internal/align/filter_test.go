package align

import (
	"testing"

	"meetscribe/pkg/model"

	"github.com/stretchr/testify/assert"
)

func TestFilter_DropsHighNoSpeechScore(t *testing.T) {
	filter := NewHallucinationFilter(0.5, DefaultHallucinationPhrases())

	kept, drops := filter.Apply([]model.Segment{
		{Start: 0, End: 2, Text: "real speech", NoSpeechProb: 0.6, Source: "microphone"},
	})

	assert.Empty(t, kept)
	assert.Len(t, drops, 1)
	assert.Equal(t, DropReasonNoSpeech, drops[0].Reason)
	assert.Equal(t, "real speech", drops[0].Segment.Text)
}

func TestFilter_DropsKnownHallucinationPhrase(t *testing.T) {
	filter := NewHallucinationFilter(0.5, DefaultHallucinationPhrases())

	kept, drops := filter.Apply([]model.Segment{
		{Start: 0, End: 1, Text: "...", NoSpeechProb: 0.1, Source: "microphone"},
	})

	assert.Empty(t, kept)
	assert.Len(t, drops, 1)
	assert.Equal(t, DropReasonPhrase, drops[0].Reason)
}

func TestFilter_DropsEmptyText(t *testing.T) {
	filter := NewHallucinationFilter(0.5, nil)

	kept, drops := filter.Apply([]model.Segment{
		{Start: 0, End: 1, Text: "   ", NoSpeechProb: 0.0, Source: "microphone"},
	})

	assert.Empty(t, kept)
	assert.Len(t, drops, 1)
	assert.Equal(t, DropReasonEmpty, drops[0].Reason)
}

func TestFilter_KeepsValidSegmentsUnmodified(t *testing.T) {
	filter := NewHallucinationFilter(0.5, DefaultHallucinationPhrases())

	in := []model.Segment{
		{Start: 0, End: 5, Text: "hello everyone", NoSpeechProb: 0.02, Source: "microphone"},
		{Start: 5, End: 6, Text: "...", NoSpeechProb: 0.1, Source: "microphone"},
		{Start: 6, End: 9, Text: "let's get started", NoSpeechProb: 0.3, Source: "microphone"},
	}

	kept, drops := filter.Apply(in)

	assert.Len(t, kept, 2)
	assert.Equal(t, in[0], kept[0])
	assert.Equal(t, in[2], kept[1])
	assert.Len(t, drops, 1)
}

func TestFilter_PhraseMatchIsExact(t *testing.T) {
	filter := NewHallucinationFilter(0.5, []string{"subscribe"})

	kept, drops := filter.Apply([]model.Segment{
		{Start: 0, End: 1, Text: "subscribe", NoSpeechProb: 0.0},
		{Start: 1, End: 2, Text: "please subscribe to the agenda", NoSpeechProb: 0.0},
	})

	assert.Len(t, kept, 1)
	assert.Equal(t, "please subscribe to the agenda", kept[0].Text)
	assert.Len(t, drops, 1)
}
