package notation

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// offsetTicks is the fixed subdivision used to align events across parts and
// voices while chordifying (480 ticks per quarter note).
const offsetTicks = 480

type mxlDocument struct {
	XMLName       xml.Name `xml:"score-partwise"`
	MovementTitle string   `xml:"movement-title"`
	Work          struct {
		Title string `xml:"work-title"`
	} `xml:"work"`
	Parts []mxlPart `xml:"part"`
}

type mxlPart struct {
	Measures []mxlMeasure `xml:"measure"`
}

type mxlAttributes struct {
	Divisions int `xml:"divisions"`
	Key       *struct {
		Fifths int    `xml:"fifths"`
		Mode   string `xml:"mode"`
	} `xml:"key"`
	Time *struct {
		Beats    int `xml:"beats"`
		BeatType int `xml:"beat-type"`
	} `xml:"time"`
}

type mxlPitch struct {
	Step   string `xml:"step"`
	Alter  int    `xml:"alter"`
	Octave int    `xml:"octave"`
}

type mxlNote struct {
	Chord    *struct{} `xml:"chord"`
	Grace    *struct{} `xml:"grace"`
	Rest     *struct{} `xml:"rest"`
	Pitch    *mxlPitch `xml:"pitch"`
	Duration int       `xml:"duration"`
}

type mxlItemKind int

const (
	itemAttributes mxlItemKind = iota
	itemNote
	itemBackup
	itemForward
)

type mxlItem struct {
	kind     mxlItemKind
	attrs    *mxlAttributes
	note     *mxlNote
	duration int
}

// mxlMeasure keeps its children in document order so voice cursors driven by
// backup/forward elements stay accurate.
type mxlMeasure struct {
	number string
	items  []mxlItem
}

func (m *mxlMeasure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "number" {
			m.number = attr.Value
		}
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "attributes":
				var a mxlAttributes
				if err := d.DecodeElement(&a, &t); err != nil {
					return err
				}
				m.items = append(m.items, mxlItem{kind: itemAttributes, attrs: &a})
			case "note":
				var n mxlNote
				if err := d.DecodeElement(&n, &t); err != nil {
					return err
				}
				m.items = append(m.items, mxlItem{kind: itemNote, note: &n})
			case "backup", "forward":
				var move struct {
					Duration int `xml:"duration"`
				}
				if err := d.DecodeElement(&move, &t); err != nil {
					return err
				}
				kind := itemBackup
				if t.Name.Local == "forward" {
					kind = itemForward
				}
				m.items = append(m.items, mxlItem{kind: kind, duration: move.Duration})
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

// slot accumulates everything sounding at one offset within a measure.
type slot struct {
	pitches []Pitch
	quarter float64
	rest    bool
}

// ParseMusicXML reads a MusicXML file and returns its chordified score:
// simultaneous notes across voices and parts are merged into explicit chord
// events keyed by onset time.
func ParseMusicXML(path string) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read musicxml: %w", err)
	}

	var doc mxlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse musicxml: %w", err)
	}
	if len(doc.Parts) == 0 {
		return nil, fmt.Errorf("parse musicxml: score has no parts")
	}

	score := &Score{Title: strings.TrimSpace(doc.Work.Title)}
	if score.Title == "" {
		score.Title = strings.TrimSpace(doc.MovementTitle)
	}

	measureCount := 0
	for _, part := range doc.Parts {
		if len(part.Measures) > measureCount {
			measureCount = len(part.Measures)
		}
	}

	divisions := make([]int, len(doc.Parts))
	for i := range divisions {
		divisions[i] = 1
	}

	for measureIdx := 0; measureIdx < measureCount; measureIdx++ {
		slots := make(map[int]*slot)
		for partIdx, part := range doc.Parts {
			if measureIdx >= len(part.Measures) {
				continue
			}
			mergeMeasure(part.Measures[measureIdx], &divisions[partIdx], slots, score, partIdx == 0)
		}

		// Measure numbers come from the first part when it has any; parts can
		// disagree in length, so index into whichever part is populated.
		number := measureIdx + 1
		for _, part := range doc.Parts {
			if len(part.Measures) == 0 {
				continue
			}
			if raw := part.Measures[minInt(measureIdx, len(part.Measures)-1)].number; raw != "" {
				if parsed, err := strconv.Atoi(raw); err == nil {
					number = parsed
				}
			}
			break
		}
		score.Measures = append(score.Measures, Measure{Number: number, Events: slotsToEvents(slots)})
	}

	return score, nil
}

func mergeMeasure(measure mxlMeasure, divisions *int, slots map[int]*slot, score *Score, collectSignatures bool) {
	cursor := 0
	lastNoteOffset := 0

	for _, item := range measure.items {
		switch item.kind {
		case itemAttributes:
			if item.attrs.Divisions > 0 {
				*divisions = item.attrs.Divisions
			}
			if collectSignatures {
				if t := item.attrs.Time; t != nil && t.Beats > 0 && t.BeatType > 0 {
					score.Times = append(score.Times, TimeSignature{Numerator: t.Beats, Denominator: t.BeatType})
				}
				if k := item.attrs.Key; k != nil {
					mode := strings.ToLower(strings.TrimSpace(k.Mode))
					score.Keys = append(score.Keys, KeySignature{Fifths: k.Fifths, Mode: mode})
				}
			}
		case itemBackup:
			cursor -= toTicks(item.duration, *divisions)
			if cursor < 0 {
				cursor = 0
			}
		case itemForward:
			cursor += toTicks(item.duration, *divisions)
		case itemNote:
			note := item.note
			if note.Grace != nil || note.Duration <= 0 {
				continue
			}
			ticks := toTicks(note.Duration, *divisions)
			quarter := float64(note.Duration) / float64(*divisions)

			offset := cursor
			if note.Chord != nil {
				offset = lastNoteOffset
			} else {
				lastNoteOffset = cursor
				cursor += ticks
			}

			entry := slots[offset]
			if entry == nil {
				entry = &slot{quarter: quarter}
				slots[offset] = entry
			}
			if note.Rest != nil || note.Pitch == nil {
				entry.rest = true
				continue
			}
			entry.pitches = append(entry.pitches, Pitch{
				Step:   strings.ToUpper(strings.TrimSpace(note.Pitch.Step)),
				Alter:  note.Pitch.Alter,
				Octave: note.Pitch.Octave,
			})
		}
	}
}

func slotsToEvents(slots map[int]*slot) []Event {
	offsets := make([]int, 0, len(slots))
	for offset := range slots {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)

	events := make([]Event, 0, len(offsets))
	for _, offset := range offsets {
		entry := slots[offset]
		if len(entry.pitches) > 0 {
			events = append(events, NewChord(entry.pitches, entry.quarter))
			continue
		}
		if entry.rest {
			events = append(events, NewRest(entry.quarter))
		}
	}
	return events
}

func toTicks(duration, divisions int) int {
	if divisions <= 0 {
		divisions = 1
	}
	return duration * offsetTicks / divisions
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
