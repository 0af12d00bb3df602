package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every decode failure wraps exactly one of these.
var (
	ErrMalformedHeader    = errors.New("protocol: malformed header")
	ErrLengthMismatch     = errors.New("protocol: length mismatch")
	ErrTrailingData       = errors.New("protocol: trailing data")
	ErrConsistency        = errors.New("protocol: consistency check failed")
	ErrUnknownType        = errors.New("protocol: unknown type")
	ErrUnknownLocatorType = errors.New("protocol: unknown locator type")
	ErrUnsupportedFeature = errors.New("protocol: unsupported feature")
	ErrChecksumMismatch   = errors.New("protocol: checksum mismatch")
	ErrOutOfRange         = errors.New("protocol: out of range")
)

// Refinements of the kinds above.
var (
	ErrInvalidFrameKind     = fmt.Errorf("%w: invalid frame kind", ErrMalformedHeader)
	ErrEnvelopeTypeMismatch = fmt.Errorf("%w: envelope type mismatch", ErrMalformedHeader)
	ErrSizeMismatch         = fmt.Errorf("%w: decompressed size", ErrLengthMismatch)
	ErrShortFetch           = fmt.Errorf("%w: short fetch", ErrLengthMismatch)
)

// Kinds lists the taxonomy in a stable order, used for metrics labels.
var Kinds = []error{
	ErrMalformedHeader,
	ErrLengthMismatch,
	ErrTrailingData,
	ErrConsistency,
	ErrUnknownType,
	ErrUnknownLocatorType,
	ErrUnsupportedFeature,
	ErrChecksumMismatch,
	ErrOutOfRange,
}

// KindOf returns a short label for the taxonomy kind err belongs to.
func KindOf(err error) string {
	for _, kind := range Kinds {
		if errors.Is(err, kind) {
			return strings.ReplaceAll(strings.TrimPrefix(kind.Error(), "protocol: "), " ", "_")
		}
	}
	return "other"
}

// Features that are recognized but deliberately not decoded.
const (
	FeatureCompressedEnvelope = "CompressedEnvelope"
	FeatureShardedClusters    = "ShardedClusters"
	FeatureFlags              = "FeatureFlags"
)

// UnsupportedFeatureError marks input that uses a format feature this reader
// does not implement, as opposed to input that is corrupt.
type UnsupportedFeatureError struct {
	Feature string
	Detail  string
}

func (e UnsupportedFeatureError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol: not implemented: %s", e.Feature)
	}
	return fmt.Sprintf("protocol: not implemented: %s (%s)", e.Feature, e.Detail)
}

func (e UnsupportedFeatureError) Is(target error) bool {
	return target == ErrUnsupportedFeature
}

// NotImplemented builds an UnsupportedFeatureError.
func NotImplemented(feature, detail string) error {
	return UnsupportedFeatureError{Feature: feature, Detail: detail}
}

// NoOffset marks a DecodeError raised inside decompressed data.
const NoOffset int64 = -1

// DecodeError locates a failure: which operation, which object path, which
// absolute byte offset, and the expected/found values when there are any.
type DecodeError struct {
	Op       string
	Path     string
	Offset   int64
	Expected any
	Found    any
	Err      error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Expected != nil || e.Found != nil {
		fmt.Fprintf(&b, ": expected %v, found %v", e.Expected, e.Found)
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Mismatch builds a DecodeError carrying an expected/found diff.
func Mismatch(op string, offset int64, kind error, expected, found any) error {
	return &DecodeError{Op: op, Offset: offset, Expected: expected, Found: found, Err: kind}
}

// WithPath prefixes the object path of err with path. Errors that are not a
// DecodeError yet are wrapped in one.
func WithPath(err error, path string) error {
	if err == nil || path == "" {
		return err
	}
	var de *DecodeError
	if errors.As(err, &de) {
		cp := *de
		if cp.Path == "" {
			cp.Path = path
		} else {
			cp.Path = path + "/" + cp.Path
		}
		return &cp
	}
	return &DecodeError{Op: "decode", Path: path, Offset: NoOffset, Err: err}
}
