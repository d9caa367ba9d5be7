package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	b, err := Serialize(f)
	require.NoError(t, err)
	got, err := Parse(b, 0)
	require.NoError(t, err)
	return got
}

func TestRoundTripText(t *testing.T) {
	f := NewText("hello")
	require.Equal(t, f, roundTrip(t, f))
}

func TestRoundTripFileList(t *testing.T) {
	f := NewFileList([]FileEntry{{Filename: "a.txt", Size: 3, Path: "/tmp/a.txt", Hash: "abc"}})
	require.Equal(t, f, roundTrip(t, f))
}

func TestRoundTripFileRequest(t *testing.T) {
	f := NewFileRequest("a.txt", "/tmp/a.txt", "abc")
	require.Equal(t, f, roundTrip(t, f))
}

func TestRoundTripFileChunkFirst(t *testing.T) {
	f := NewFileChunk("a.bin", 0, 3, EncodeChunkBytes([]byte("xyz")), "digest0", "wholedigest")
	got := roundTrip(t, f)
	require.Equal(t, f, got)
	require.True(t, got.HasWholeFileDigest())
}

func TestRoundTripFileChunkLater(t *testing.T) {
	f := NewFileChunk("a.bin", 1, 3, EncodeChunkBytes([]byte("xyz")), "digest1", "")
	got := roundTrip(t, f)
	require.Equal(t, f, got)
	require.False(t, got.HasWholeFileDigest())
	require.Empty(t, got.WholeFileDigest)
}

func TestParseRejectsOversizeFrame(t *testing.T) {
	f := NewText("hello")
	b, err := Serialize(f)
	require.NoError(t, err)
	_, err = Parse(b, len(b)-1)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"BOGUS"}`), 0)
	require.Error(t, err)
}

func TestParseRejectsBadBase64Chunk(t *testing.T) {
	raw := `{"type":"FILE_CHUNK","filename":"a","chunk_index":0,"total_chunks":1,"chunk_bytes":"not-base64!!","whole_file_digest":"d"}`
	_, err := Parse([]byte(raw), 0)
	require.Error(t, err)
}

func TestParseRejectsMissingWholeFileDigestOnFirstChunk(t *testing.T) {
	raw := `{"type":"FILE_CHUNK","filename":"a","chunk_index":0,"total_chunks":1,"chunk_bytes":"` + EncodeChunkBytes([]byte("x")) + `"}`
	_, err := Parse([]byte(raw), 0)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "whole_file_digest"))
}

func TestParseRejectsWholeFileDigestOnLaterChunk(t *testing.T) {
	raw := `{"type":"FILE_CHUNK","filename":"a","chunk_index":1,"total_chunks":2,"chunk_bytes":"` +
		EncodeChunkBytes([]byte("x")) + `","whole_file_digest":"d"}`
	_, err := Parse([]byte(raw), 0)
	require.Error(t, err)
}

func TestParseRejectsBadChunkIndex(t *testing.T) {
	raw := `{"type":"FILE_CHUNK","filename":"a","chunk_index":5,"total_chunks":2,"chunk_bytes":"` +
		EncodeChunkBytes([]byte("x")) + `"}`
	_, err := Parse([]byte(raw), 0)
	require.Error(t, err)
}

func TestParseRejectsMissingFilenameOnRequest(t *testing.T) {
	_, err := Parse([]byte(`{"type":"FILE_REQUEST"}`), 0)
	require.Error(t, err)
}
