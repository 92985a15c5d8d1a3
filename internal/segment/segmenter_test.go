package segment

import (
	"testing"

	"github.com/MrWong99/voxseg/pkg/audio"
)

func TestSegmenter_LookbackScenario(t *testing.T) {
	s := NewSegmenter(2)
	decisions := []bool{false, false, false, true, true, false}

	var (
		utt     Utterance
		flushed int
	)
	for i, speech := range decisions {
		u, ok := s.Push(constFrame(512, float32(i)), speech)
		if ok {
			utt = u
			flushed++
		}
	}

	if flushed != 1 {
		t.Fatalf("flushed %d times, want 1", flushed)
	}
	if len(utt.Frames) != 5 {
		t.Fatalf("utterance has %d frames, want 5", len(utt.Frames))
	}
	if got := audio.TotalSamples(utt.Frames); got != 2560 {
		t.Errorf("utterance samples = %d, want 2560", got)
	}
	if utt.LookbackFrames != 2 {
		t.Errorf("LookbackFrames = %d, want 2", utt.LookbackFrames)
	}
	// Frame 0 is evicted; frames 1..5 remain in order.
	for i, f := range utt.Frames {
		if f[0] != float32(i+1) {
			t.Errorf("frame %d starts with %v, want %v", i, f[0], float32(i+1))
		}
	}
	if s.State() != StateIdle || s.Buffered() != 0 {
		t.Errorf("after flush: state=%v buffered=%d, want idle/0", s.State(), s.Buffered())
	}
}

func TestSegmenter_SilenceOnlyNeverFlushes(t *testing.T) {
	const bound = 3
	for _, l := range []int{0, 1, 3, 4, 50} {
		s := NewSegmenter(bound)
		for i := range l {
			if _, ok := s.Push(constFrame(4, float32(i)), false); ok {
				t.Fatalf("L=%d: flushed on silence", l)
			}
		}
		if got, want := s.Buffered(), min(l, bound); got != want {
			t.Errorf("L=%d: Buffered() = %d, want %d", l, got, want)
		}
	}
}

func TestSegmenter_FlushIffSpeechThenSilence(t *testing.T) {
	tests := []struct {
		name      string
		decisions []bool
		want      int
	}{
		{"speech only", []bool{true, true, true}, 0},
		{"speech then silence", []bool{true, false}, 1},
		{"isolated speech frame", []bool{false, true, false, false}, 1},
		{"two utterances", []bool{true, false, true, true, false}, 2},
		{"trailing speech", []bool{true, false, true}, 1},
		{"empty", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSegmenter(2)
			flushed := 0
			for _, speech := range tc.decisions {
				if _, ok := s.Push(constFrame(4, 0), speech); ok {
					flushed++
				}
			}
			if flushed != tc.want {
				t.Errorf("flushed %d, want %d", flushed, tc.want)
			}
		})
	}
}

func TestSegmenter_SampleCountMatchesOnsetPlusSpeaking(t *testing.T) {
	const frameSize = 8
	s := NewSegmenter(4)
	// Two silent frames of context, then 6 speaking frames incl. the
	// terminating silence.
	for range 2 {
		s.Push(constFrame(frameSize, 0), false)
	}
	var utt Utterance
	for i, speech := range []bool{true, true, true, true, true, false} {
		u, ok := s.Push(constFrame(frameSize, 1), speech)
		if ok != (i == 5) {
			t.Fatalf("frame %d: flushed=%v", i, ok)
		}
		utt = u
	}
	if got, want := audio.TotalSamples(utt.Frames), (2+6)*frameSize; got != want {
		t.Errorf("samples = %d, want %d", got, want)
	}
}

func TestSegmenter_SpeakingIsNotTrimmed(t *testing.T) {
	s := NewSegmenter(1)
	for range 10 {
		s.Push(constFrame(4, 1), true)
	}
	if s.Buffered() != 10 {
		t.Errorf("Buffered() = %d while speaking, want 10", s.Buffered())
	}
}

func TestSegmenter_Flush(t *testing.T) {
	s := NewSegmenter(2)
	s.Push(constFrame(4, 0), false)
	if _, ok := s.Flush(); ok {
		t.Fatal("Flush while idle returned a segment")
	}
	if s.Buffered() != 1 {
		t.Errorf("idle Flush dropped lookback: Buffered() = %d, want 1", s.Buffered())
	}

	s.Push(constFrame(4, 1), true)
	s.Push(constFrame(4, 1), true)
	utt, ok := s.Flush()
	if !ok {
		t.Fatal("Flush while speaking returned nothing")
	}
	if len(utt.Frames) != 3 || utt.LookbackFrames != 1 {
		t.Errorf("utt = %d frames / %d lookback, want 3 / 1", len(utt.Frames), utt.LookbackFrames)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v after Flush, want idle", s.State())
	}
}

func TestSegmenter_Reset(t *testing.T) {
	s := NewSegmenter(2)
	s.Push(constFrame(4, 1), true)
	s.Reset()
	if s.State() != StateIdle || s.Buffered() != 0 {
		t.Errorf("after Reset: state=%v buffered=%d", s.State(), s.Buffered())
	}
}
