// Package homr wraps the homr optical music recognition engine.
//
// The engine runs as a bounded subprocess through poetry from its project
// checkout. It writes a MusicXML file beside its input image on success and
// prints diagnostics on failure; this package classifies those diagnostics
// and retries exactly once with an enhanced render when the engine could not
// detect staff structure at all.
package homr
