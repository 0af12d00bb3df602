package envelope

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/locator"
	"github.com/danmuck/rootio/internal/testutil/rootfixture"
	"github.com/danmuck/rootio/internal/testutil/testlog"
)

var testKind = Kind[uint32]{
	TypeID: TypeHeader,
	Name:   "test",
	Read: func(c cursor.Cursor) (uint32, cursor.Cursor, error) {
		return c.U32(cursor.Little)
	},
}

func buildEnvelope(typeID uint16, payload []byte, checksum uint64) []byte {
	length := uint64(MinLen + len(payload))
	return rootfixture.LE().U64(length<<16 | uint64(typeID)).Raw(payload).U64(checksum).Bytes()
}

func TestReadCapturesUnknownAndChecksum(t *testing.T) {
	testlog.Start(t)
	payload := rootfixture.LE().U32(1234).Raw([]byte{9, 8, 7}).Bytes()
	raw := buildEnvelope(TypeHeader, payload, 0xCAFEBABE)

	env, rest, err := Read(cursor.FromBytes(raw), testKind)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.TypeID != TypeHeader || env.Length != uint64(len(raw)) || env.Payload != 1234 || env.Checksum != 0xCAFEBABE {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !bytes.Equal(env.Unknown, []byte{9, 8, 7}) {
		t.Fatalf("unknown bytes not captured: %x", env.Unknown)
	}
	if !rest.Empty() {
		t.Fatalf("envelope not fully consumed")
	}
	if env.Length != PreambleLen+4+uint64(len(env.Unknown))+ChecksumLen {
		t.Fatalf("structural accounting does not balance")
	}
}

func TestReadLengthMismatch(t *testing.T) {
	testlog.Start(t)
	raw := buildEnvelope(TypeHeader, rootfixture.LE().U32(1).Bytes(), 0)
	_, _, err := Read(cursor.FromBytes(append(raw, 0)), testKind)
	if !errors.Is(err, protocol.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	_, _, err = Read(cursor.FromBytes(raw[:len(raw)-1]), testKind)
	if !errors.Is(err, protocol.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for truncated envelope, got %v", err)
	}
	var de *protocol.DecodeError
	if !errors.As(err, &de) || de.Expected == nil || de.Found == nil {
		t.Fatalf("expected expected/found diff, got %v", err)
	}
}

func TestReadTypeMismatch(t *testing.T) {
	testlog.Start(t)
	raw := buildEnvelope(TypeFooter, rootfixture.LE().U32(1).Bytes(), 0)
	_, _, err := Read(cursor.FromBytes(raw), testKind)
	if !errors.Is(err, protocol.ErrEnvelopeTypeMismatch) {
		t.Fatalf("expected ErrEnvelopeTypeMismatch, got %v", err)
	}
}

func TestReadTooShort(t *testing.T) {
	testlog.Start(t)
	raw := rootfixture.LE().U64(8<<16 | uint64(TypeHeader)).Bytes()
	_, _, err := Read(cursor.FromBytes(raw), testKind)
	if !errors.Is(err, protocol.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestPayloadCannotReadIntoChecksum(t *testing.T) {
	testlog.Start(t)
	raw := buildEnvelope(TypeHeader, []byte{1, 2}, 0xFFFFFFFFFFFFFFFF)
	_, _, err := Read(cursor.FromBytes(raw), testKind)
	if !errors.Is(err, protocol.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func memFetcher(base uint64, data []byte) cursor.Fetcher {
	return cursor.Window(data, base)
}

func TestResolveLink(t *testing.T) {
	testlog.Start(t)
	raw := buildEnvelope(TypeHeader, rootfixture.LE().U32(77).Bytes(), 5)
	link := Link{Length: uint64(len(raw)), Locator: locator.Standard(uint32(len(raw)), 1000)}

	env, err := Resolve(context.Background(), memFetcher(1000, raw), link, testKind)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if env.Payload != 77 || env.Checksum != 5 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestResolveCompressedLinkIsNotImplemented(t *testing.T) {
	testlog.Start(t)
	link := Link{Length: 400, Locator: locator.Standard(138, 0)}
	_, err := Resolve(context.Background(), memFetcher(0, make([]byte, 138)), link, testKind)
	if !errors.Is(err, protocol.ErrUnsupportedFeature) {
		t.Fatalf("expected ErrUnsupportedFeature, got %v", err)
	}
	var ufe protocol.UnsupportedFeatureError
	if !errors.As(err, &ufe) || ufe.Feature != protocol.FeatureCompressedEnvelope {
		t.Fatalf("expected CompressedEnvelope feature, got %v", err)
	}
}

func TestReadLink(t *testing.T) {
	testlog.Start(t)
	raw := locator.Standard(244, 1409).Append(rootfixture.LE().U64(244).Bytes())
	link, rest, err := ReadLink(cursor.FromBytes(raw))
	if err != nil {
		t.Fatalf("read link: %v", err)
	}
	want := Link{Length: 244, Locator: locator.Standard(244, 1409)}
	if link != want || !rest.Empty() || link.Compressed() {
		t.Fatalf("unexpected link: %+v", link)
	}
}

func TestCheckFeatureFlags(t *testing.T) {
	testlog.Start(t)
	if err := CheckFeatureFlags(0); err != nil {
		t.Fatalf("zero flags rejected: %v", err)
	}
	if err := CheckFeatureFlags(1 << 3); !errors.Is(err, protocol.ErrUnsupportedFeature) {
		t.Fatalf("expected ErrUnsupportedFeature, got %v", err)
	}
}
