// Package pdf rasterizes uploaded PDF documents into per-page JPEG images
// for the recognition engine.
package pdf
