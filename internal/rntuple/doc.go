// Package rntuple decodes the little-endian columnar sub-format: the header,
// footer and page-list envelopes an RNTuple anchor points at, the schema
// records they carry, and the pages those records locate.
package rntuple
