package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"clipshare-node/internal/codec"
)

// inboundTransfer tracks one file's partial chunk set, keyed by
// filename per spec.md §3's InboundTransfer.
type inboundTransfer struct {
	expectedChunks int
	expectedDigest string
	chunks         map[int][]byte
}

// Receiver reassembles incoming FILE_CHUNK frames into files under
// destDir, verifying per-chunk and whole-file digests as spec.md
// §4.5.2 requires, and populates cache on success.
type Receiver struct {
	mu      sync.Mutex
	destDir string
	cache   *Cache
	inflight map[string]*inboundTransfer
}

// NewReceiver builds a Receiver writing completed files under destDir.
func NewReceiver(destDir string, cache *Cache) *Receiver {
	return &Receiver{destDir: destDir, cache: cache, inflight: make(map[string]*inboundTransfer)}
}

// HasDigest reports whether digest is already present in the file
// cache, i.e. a FILE_LIST entry carrying it needs no FILE_REQUEST.
func (r *Receiver) HasDigest(digest string) bool {
	if r.cache == nil || digest == "" {
		return false
	}
	_, ok := r.cache.Lookup(digest)
	return ok
}

// HandleChunk processes one FILE_CHUNK frame. It returns a non-nil
// CompletedEvent once the named file is fully reassembled and
// verified. A non-nil error means this chunk (or the transfer it
// belongs to) was dropped; per spec.md §4.5.5 this is never session-
// fatal.
func (r *Receiver) HandleChunk(f codec.Frame) (*CompletedEvent, error) {
	body, err := codec.DecodeChunkBytes(f)
	if err != nil {
		return nil, errf(KindBadChunk, f.Filename, "chunk_bytes not decodable: %v", err)
	}
	if f.ChunkDigest != "" {
		sum := sha256.Sum256(body)
		if hex.EncodeToString(sum[:]) != f.ChunkDigest {
			return nil, errf(KindBadChunk, f.Filename, "chunk %d digest mismatch", f.ChunkIndex)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dest := filepath.Join(r.destDir, f.Filename)
	t, ok := r.inflight[f.Filename]
	if !ok {
		if _, err := os.Stat(dest); err == nil {
			_ = os.Remove(dest)
		}
		t = &inboundTransfer{
			expectedChunks: f.TotalChunks,
			expectedDigest: f.WholeFileDigest,
			chunks:         make(map[int][]byte),
		}
		r.inflight[f.Filename] = t
	}

	if _, dup := t.chunks[f.ChunkIndex]; dup {
		return nil, nil // idempotent: first copy of a chunk wins
	}
	t.chunks[f.ChunkIndex] = body

	if len(t.chunks) != t.expectedChunks {
		return nil, nil
	}

	delete(r.inflight, f.Filename)
	return r.assemble(f.Filename, dest, t)
}

func (r *Receiver) assemble(filename, dest string, t *inboundTransfer) (*CompletedEvent, error) {
	out, err := os.Create(dest)
	if err != nil {
		return nil, errf(KindIOError, filename, "create destination: %v", err)
	}

	h := sha256.New()
	for i := 0; i < t.expectedChunks; i++ {
		chunk, ok := t.chunks[i]
		if !ok {
			out.Close()
			_ = os.Remove(dest)
			return nil, errf(KindMissingChunk, filename, "chunk %d never arrived", i)
		}
		if _, err := out.Write(chunk); err != nil {
			out.Close()
			_ = os.Remove(dest)
			return nil, errf(KindIOError, filename, "write chunk %d: %v", i, err)
		}
		h.Write(chunk)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return nil, errf(KindIOError, filename, "close: %v", err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if t.expectedDigest != "" && digest != t.expectedDigest {
		_ = os.Remove(dest)
		return nil, errf(KindDigestMismatch, filename, "whole-file digest mismatch")
	}

	if r.cache != nil {
		r.cache.Insert(digest, dest)
	}
	return &CompletedEvent{Filename: filename, Path: dest, Digest: digest}, nil
}
