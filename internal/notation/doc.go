// Package notation turns a recognized MusicXML score into the transcriber's
// text outputs.
//
// The package parses MusicXML into a chordified score model (a closed set of
// note/chord/rest events with quarter-length durations), then encodes it as
// ABC notation text, a concise token stream, and a rendered MIDI file. All
// encoders are pure functions of the parsed score; conversion failures in the
// text encoders surface in-band as output text so a job can still complete
// with its MusicXML artifact.
package notation
