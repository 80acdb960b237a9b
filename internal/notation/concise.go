package notation

import (
	"fmt"
	"math"
	"strings"
)

// noEventsSentinel is returned instead of an empty string when a score
// carries no note or rest events at all.
const noEventsSentinel = "No note events detected."

// maxFractionDenominator caps the denominator used when reducing quarter
// lengths to whole-note fractions.
const maxFractionDenominator = 192

// QuarterToFraction represents a quarter-length as a whole-note fraction
// string: a bare integer when whole, "num/den" otherwise (e.g. 1 -> "1/4",
// 2 -> "1/2", 4 -> "1").
func QuarterToFraction(quarter float64) string {
	if quarter <= 0 {
		return "0"
	}
	num, den := limitDenominator(quarter, maxFractionDenominator)
	den *= 4
	g := gcd(num, den)
	num /= g
	den /= g
	if den == 1 {
		return fmt.Sprintf("%d", num)
	}
	return fmt.Sprintf("%d/%d", num, den)
}

// EventToken renders one event as a concise token, or ok=false for events
// with nothing to show (e.g. an empty chord).
func EventToken(event Event) (string, bool) {
	duration := QuarterToFraction(event.Quarter)

	switch event.Kind {
	case KindRest:
		return "R:" + duration, true
	case KindNote:
		if len(event.Pitches) == 0 {
			return "", false
		}
		return event.Pitches[0].Label() + ":" + duration, true
	case KindChord:
		if len(event.Pitches) == 0 {
			return "", false
		}
		labels := make([]string, 0, len(event.Pitches))
		for _, p := range event.Pitches {
			labels = append(labels, p.Label())
		}
		if len(labels) == 1 {
			return labels[0] + ":" + duration, true
		}
		return "[" + strings.Join(labels, ",") + "]:" + duration, true
	}
	return "", false
}

// EncodeConcise builds the ordered concise note stream: tokens within a
// measure are space-joined, measures joined with " | ". Scores without
// measure structure emit one flat sequence.
func EncodeConcise(score *Score) string {
	var chunks []string
	for _, measure := range score.Measures {
		var tokens []string
		for _, event := range measure.Events {
			if token, ok := EventToken(event); ok {
				tokens = append(tokens, token)
			}
		}
		if len(tokens) > 0 {
			chunks = append(chunks, strings.Join(tokens, " "))
		}
	}
	if len(chunks) > 0 {
		return strings.Join(chunks, " | ")
	}

	var tokens []string
	for _, event := range score.Flat {
		if token, ok := EventToken(event); ok {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) > 0 {
		return strings.Join(tokens, " ")
	}

	return noEventsSentinel
}

// ConciseFromFile parses a MusicXML file and returns its concise token
// stream, reporting failures in-band like ABCFromFile.
func ConciseFromFile(path string) string {
	score, err := ParseMusicXML(path)
	if err != nil {
		return fmt.Sprintf("Error building concise note output: %v", err)
	}
	return EncodeConcise(score)
}

// limitDenominator finds the closest fraction to value whose denominator does
// not exceed max, preferring the smallest denominator on ties.
func limitDenominator(value float64, max int) (int, int) {
	bestNum, bestDen := int(math.Round(value)), 1
	bestErr := math.Abs(value - float64(bestNum))
	for den := 2; den <= max; den++ {
		num := int(math.Round(value * float64(den)))
		err := math.Abs(value - float64(num)/float64(den))
		if err < bestErr-1e-12 {
			bestNum, bestDen, bestErr = num, den, err
		}
		if bestErr == 0 {
			break
		}
	}
	g := gcd(bestNum, bestDen)
	if g > 1 {
		bestNum /= g
		bestDen /= g
	}
	return bestNum, bestDen
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
