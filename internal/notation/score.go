package notation

import (
	"fmt"
	"sort"
)

// Kind discriminates the closed set of score event variants.
type Kind int

const (
	KindNote Kind = iota
	KindChord
	KindRest
)

// Pitch is a single notated pitch: a step letter, a chromatic alteration,
// and an octave in scientific pitch notation.
type Pitch struct {
	Step   string
	Alter  int
	Octave int
}

var stepSemitones = map[string]int{
	"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11,
}

// Space returns the pitch-space value (MIDI note number) used for ordering
// chord members ascending by height.
func (p Pitch) Space() int {
	return (p.Octave+1)*12 + stepSemitones[p.Step] + p.Alter
}

// Label renders the pitch as a readable note name with octave, flats as "b"
// and sharps as "#" (e.g. G3, Bb4, F#5).
func (p Pitch) Label() string {
	accidental := ""
	switch {
	case p.Alter < 0:
		for i := 0; i > p.Alter; i-- {
			accidental += "b"
		}
	case p.Alter > 0:
		for i := 0; i < p.Alter; i++ {
			accidental += "#"
		}
	}
	return fmt.Sprintf("%s%s%d", p.Step, accidental, p.Octave)
}

// Event is one note, chord, or rest with a duration in quarter lengths.
// Pitches is empty for rests and sorted ascending by pitch space otherwise.
type Event struct {
	Kind    Kind
	Pitches []Pitch
	Quarter float64
}

// NewNote builds a single-pitch note event.
func NewNote(p Pitch, quarter float64) Event {
	return Event{Kind: KindNote, Pitches: []Pitch{p}, Quarter: quarter}
}

// NewChord builds a chord event with members sorted ascending by pitch space.
// A single-member chord collapses to a note.
func NewChord(pitches []Pitch, quarter float64) Event {
	sorted := make([]Pitch, len(pitches))
	copy(sorted, pitches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Space() < sorted[j].Space() })
	kind := KindChord
	if len(sorted) == 1 {
		kind = KindNote
	}
	return Event{Kind: kind, Pitches: sorted, Quarter: quarter}
}

// NewRest builds a rest event.
func NewRest(quarter float64) Event {
	return Event{Kind: KindRest, Quarter: quarter}
}

// Measure is an ordered run of events within one notated bar.
type Measure struct {
	Number int
	Events []Event
}

// TimeSignature is a simple meter declaration.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// KeySignature carries the circle-of-fifths position and mode from the score.
type KeySignature struct {
	Fifths int
	Mode   string
}

var majorTonics = []string{"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#"}
var minorTonics = []string{"Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#", "G#", "D#", "A#"}

// Tonic resolves the tonic note name for the signature's mode.
func (k KeySignature) Tonic() string {
	idx := k.Fifths + 7
	if idx < 0 || idx > 14 {
		return "C"
	}
	if k.Mode == "minor" {
		return minorTonics[idx]
	}
	return majorTonics[idx]
}

// ABC renders the signature as an ABC key field value; minor mode appends "m".
func (k KeySignature) ABC() string {
	if k.Mode == "minor" {
		return k.Tonic() + "m"
	}
	return k.Tonic()
}

// Score is the chordified, flattened view of a parsed piece: declarations in
// document order plus measures of merged note/chord/rest events. Flat carries
// events for scores that expose no measure structure.
type Score struct {
	Title    string
	Times    []TimeSignature
	Keys     []KeySignature
	Measures []Measure
	Flat     []Event
}

// Events returns all events in score order regardless of measure structure.
func (s *Score) Events() []Event {
	if len(s.Measures) == 0 {
		return s.Flat
	}
	var events []Event
	for _, m := range s.Measures {
		events = append(events, m.Events...)
	}
	return events
}
