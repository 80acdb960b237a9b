package notation

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	midiTicksPerQuarter = 480
	midiVelocity        = 80
	midiTempoBPM        = 120
)

// RenderMIDI writes the score as a standard MIDI file. All events land on one
// track; chords emit simultaneous note-on messages and rests advance time.
func RenderMIDI(score *Score, path string) error {
	events := score.Events()
	if len(events) == 0 {
		return fmt.Errorf("render midi: score has no events")
	}

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(trackName(score)))
	track.Add(0, smf.MetaTempo(midiTempoBPM))
	if len(score.Times) > 0 {
		ts := score.Times[0]
		track.Add(0, smf.MetaMeter(uint8(ts.Numerator), uint8(ts.Denominator)))
	}

	pending := uint32(0)
	for _, event := range events {
		ticks := quarterTicks(event.Quarter)
		if event.Kind == KindRest || len(event.Pitches) == 0 {
			pending += ticks
			continue
		}

		keys := make([]uint8, 0, len(event.Pitches))
		for _, p := range event.Pitches {
			keys = append(keys, midiKey(p))
		}

		for i, key := range keys {
			delta := uint32(0)
			if i == 0 {
				delta = pending
			}
			track.Add(delta, midi.NoteOn(0, key, midiVelocity))
		}
		for i, key := range keys {
			delta := uint32(0)
			if i == 0 {
				delta = ticks
			}
			track.Add(delta, midi.NoteOff(0, key))
		}
		pending = 0
	}
	track.Close(0)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(midiTicksPerQuarter)
	if err := file.Add(track); err != nil {
		return fmt.Errorf("render midi: %w", err)
	}
	if err := file.WriteFile(path); err != nil {
		return fmt.Errorf("render midi: %w", err)
	}
	return nil
}

func trackName(score *Score) string {
	if score.Title != "" {
		return score.Title
	}
	return "Transcribed Sheet Music"
}

func quarterTicks(quarter float64) uint32 {
	if quarter <= 0 {
		return 0
	}
	return uint32(quarter*midiTicksPerQuarter + 0.5)
}

func midiKey(p Pitch) uint8 {
	value := p.Space()
	if value < 0 {
		value = 0
	}
	if value > 127 {
		value = 127
	}
	return uint8(value)
}
