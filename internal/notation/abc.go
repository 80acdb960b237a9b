package notation

import (
	"fmt"
	"strings"
)

// DurationToABC converts a quarter-length to ABC duration syntax relative to
// a unit length of L:1/4. Common values use the fixed table; other integer
// multiples render as decimal strings and unit fractions as "/n".
func DurationToABC(quarter float64) string {
	switch quarter {
	case 4:
		return "4"
	case 3:
		return "3"
	case 2:
		return "2"
	case 1.5:
		return "3/2"
	case 1:
		return ""
	case 0.75:
		return "3/4"
	case 0.5:
		return "/2"
	case 0.25:
		return "/4"
	}

	if quarter > 1 && quarter == float64(int(quarter)) {
		return fmt.Sprintf("%d", int(quarter))
	}
	if quarter > 0 && quarter < 1 {
		reciprocal := 1 / quarter
		if reciprocal == float64(int(reciprocal)) {
			return fmt.Sprintf("/%d", int(reciprocal))
		}
	}
	return trimFloat(quarter)
}

// PitchToABC renders a pitch in ABC octave notation: octave 4 is a bare
// uppercase letter, octaves above 4 go lowercase with "'" marks past 5, and
// octaves below 4 stay uppercase with "," marks.
func PitchToABC(p Pitch) string {
	step := strings.ToUpper(p.Step)
	switch {
	case p.Octave >= 5:
		return strings.ToLower(step) + strings.Repeat("'", p.Octave-5)
	case p.Octave == 4:
		return step
	default:
		return step + strings.Repeat(",", 4-p.Octave)
	}
}

// EncodeABC renders the score as ABC text with the standard header, one body
// line per measure, and a trailing simplified pitch listing.
func EncodeABC(score *Score) string {
	lines := []string{
		"X:1",
		"T:Transcribed Sheet Music",
		"M:4/4",
		"L:1/4",
		"K:C",
		"",
		"% Standard ABC notation (with octaves):",
		"",
	}

	if score.Title != "" {
		lines[1] = "T:" + score.Title
	}
	if len(score.Times) > 0 {
		ts := score.Times[0]
		lines[2] = fmt.Sprintf("M:%d/%d", ts.Numerator, ts.Denominator)
	}
	if len(score.Keys) > 0 {
		lines[4] = "K:" + score.Keys[0].ABC()
	}

	for _, measure := range score.Measures {
		var items []string
		for _, event := range measure.Events {
			items = append(items, eventToABC(event))
		}
		if len(items) > 0 {
			lines = append(lines, strings.Join(items, " ")+" |")
		}
	}
	if len(score.Measures) == 0 {
		var items []string
		for _, event := range score.Flat {
			items = append(items, eventToABC(event))
		}
		if len(items) > 0 {
			lines = append(lines, strings.Join(items, " ")+" |")
		}
	}

	lines = append(lines, "", "% Simplified chord/note list (pitch + octave):")
	var simplified []string
	for _, event := range score.Events() {
		switch event.Kind {
		case KindChord:
			labels := make([]string, 0, len(event.Pitches))
			for _, p := range event.Pitches {
				labels = append(labels, p.Label())
			}
			simplified = append(simplified, strings.Join(labels, "/"))
		case KindNote:
			simplified = append(simplified, event.Pitches[0].Label())
		}
	}
	if len(simplified) > 0 {
		lines = append(lines, strings.Join(simplified, " | "))
	}

	return strings.Join(lines, "\n")
}

// ABCFromFile parses a MusicXML file and returns its ABC rendering. Failures
// are reported in-band as output text rather than an error so a job can still
// complete with its MusicXML artifact.
func ABCFromFile(path string) string {
	score, err := ParseMusicXML(path)
	if err != nil {
		return fmt.Sprintf(
			"Error converting to ABC: %v\n\n(ABC conversion is experimental - use MusicXML for best results)",
			err,
		)
	}
	return EncodeABC(score)
}

func eventToABC(event Event) string {
	duration := DurationToABC(event.Quarter)
	switch event.Kind {
	case KindRest:
		return "z" + duration
	case KindChord:
		var b strings.Builder
		b.WriteString("[")
		for _, p := range event.Pitches {
			b.WriteString(PitchToABC(p))
		}
		b.WriteString("]")
		b.WriteString(duration)
		return b.String()
	default:
		return PitchToABC(event.Pitches[0]) + duration
	}
}

func trimFloat(value float64) string {
	s := fmt.Sprintf("%g", value)
	return s
}
