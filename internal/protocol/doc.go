// Package protocol owns the shared decode contract of the ROOT reader.
//
// Ownership boundary:
// - error taxonomy (kinds as sentinels, DecodeError for located failures)
// - cursor/fetch primitives (cursor)
// - type registry and dispatch (registry)
// - compression shim (compression)
// - columnar frame, locator and envelope primitives (frame, locator, envelope)
package protocol
