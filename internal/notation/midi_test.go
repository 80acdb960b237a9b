package notation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRenderMIDI(t *testing.T) {
	score := &Score{
		Title: "Test Piece",
		Times: []TimeSignature{{Numerator: 4, Denominator: 4}},
		Measures: []Measure{{Number: 1, Events: []Event{
			NewNote(Pitch{Step: "C", Octave: 4}, 1),
			NewRest(1),
			NewChord([]Pitch{
				{Step: "E", Octave: 4},
				{Step: "G", Octave: 4},
			}, 2),
		}}},
	}

	path := filepath.Join(t.TempDir(), "score.mid")
	if err := RenderMIDI(score, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 14 || string(data[:4]) != "MThd" {
		t.Fatalf("output is not a standard MIDI file (%d bytes)", len(data))
	}
}

func TestRenderMIDIEmptyScore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mid")
	if err := RenderMIDI(&Score{}, path); err == nil {
		t.Fatal("expected error for score without events")
	}
}

func TestMidiKeyClamping(t *testing.T) {
	if key := midiKey(Pitch{Step: "C", Octave: 4}); key != 60 {
		t.Errorf("C4 = %d, want 60", key)
	}
	if key := midiKey(Pitch{Step: "A", Octave: 0}); key != 21 {
		t.Errorf("A0 = %d, want 21", key)
	}
	if key := midiKey(Pitch{Step: "G", Octave: 12}); key != 127 {
		t.Errorf("expected clamp to 127, got %d", key)
	}
}
