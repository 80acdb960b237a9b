// Command transcriber is the operator CLI for the transcription daemon.
package main
