// Package pipeline sequences the fixed stage list that turns an uploaded
// sheet-music file into ABC text, concise notes, MIDI, and MusicXML
// artifacts, reporting progress through the job registry's update callback.
package pipeline
