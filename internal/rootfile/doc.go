// Package rootfile decodes the big-endian keyed-record layer of ROOT files:
// the file header, keys, directories and key lists, streamed object headers
// and the built-in classes needed to reach RNTuple anchors.
//
// Objects are resolved through a Key in the stages
// Addressed -> Framed -> Unwrapped -> Typed -> Validated; see Key.ReadObject.
package rootfile
