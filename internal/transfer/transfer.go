// Package transfer implements spec.md §4.5 (C5): chunked sending,
// reassembly, integrity verification, and the content-addressed file
// cache. Chunking and the streamed whole-file digest follow the
// teacher's broadcastFile/storeChunk/tryAssemble shape in
// file_transfer.go, adapted from the teacher's ed25519-signed,
// group-key-wrapped manifest scheme to spec.md's simpler per-chunk
// digest plus whole-file digest on chunk zero.
package transfer

import (
	"fmt"
)

// Kind is the TransferError taxonomy from spec.md §7.
type Kind int

const (
	KindBadChunk Kind = iota
	KindMissingChunk
	KindDigestMismatch
	KindIOError
)

// Error is TransferError::<kind>. Transfer failures are non-fatal to
// the session (spec.md §4.5.5): the caller abandons one file and
// continues.
type Error struct {
	Kind     Kind
	Filename string
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer %s: %s", e.Filename, e.Msg)
}

func errf(k Kind, filename, format string, args ...any) *Error {
	return &Error{Kind: k, Filename: filename, Msg: fmt.Sprintf(format, args...)}
}

// CompletedEvent reports an inbound transfer that finished and passed
// verification. The session receiver logs it; it is not passed to the
// Arbiter (C6), which tracks no received-file state.
type CompletedEvent struct {
	Filename string
	Path     string
	Digest   string
}
