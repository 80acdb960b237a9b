// Package enhance builds the staff-friendly retry render used when the
// recognition engine fails to find staff lines in the original upload.
package enhance
