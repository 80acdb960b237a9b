// Package services holds cross-cutting helpers shared by the external tool
// wrappers: sentinel error markers with a Wrap helper for classification, and
// context annotation for job and stage identifiers.
package services
