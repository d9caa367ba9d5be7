package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"clipshare-node/internal/codec"
)

// InterChunkDelay is the "small delay >= 1 ms" spec.md §4.5.1 calls
// for between chunks, so a fast local sender doesn't starve the
// receiver goroutine or the transport's write path.
const InterChunkDelay = 2 * time.Millisecond

// Sender frames local files for the encrypted send path. It is
// framing-only (spec.md §4.5.1 step 5): it never writes to the
// transport itself.
type Sender struct {
	ChunkSize int
}

// NewSender builds a Sender using chunkSize bytes per FILE_CHUNK.
func NewSender(chunkSize int) *Sender {
	return &Sender{ChunkSize: chunkSize}
}

// BuildFileList stats each path, silently skipping missing or
// non-regular files, and returns the FILE_LIST frame advertising the
// survivors with their digests, plus the surviving paths.
func (s *Sender) BuildFileList(paths []string) (codec.Frame, []string, error) {
	var entries []codec.FileEntry
	var ok []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		digest, err := digestFile(p)
		if err != nil {
			continue
		}
		entries = append(entries, codec.FileEntry{
			Filename: filepath.Base(p),
			Size:     fi.Size(),
			Path:     p,
			Hash:     digest,
		})
		ok = append(ok, p)
	}
	return codec.NewFileList(entries), ok, nil
}

// SendFile streams path as total_chunks FILE_CHUNK frames, the first
// of which carries the whole-file digest, handing each to emit in order.
// emit is expected to forward the frame over the session's encrypted
// send path; SendFile never touches the transport itself.
func (s *Sender) SendFile(ctx context.Context, path string, emit func(codec.Frame) error) error {
	filename := filepath.Base(path)

	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return errf(KindIOError, filename, "not a regular file: %v", err)
	}

	wholeDigest, err := digestFile(path)
	if err != nil {
		return errf(KindIOError, filename, "digest: %v", err)
	}

	size := fi.Size()
	totalChunks := int((size + int64(s.ChunkSize) - 1) / int64(s.ChunkSize))
	if totalChunks == 0 {
		totalChunks = 1 // empty file still gets one zero-length chunk
	}

	f, err := os.Open(path)
	if err != nil {
		return errf(KindIOError, filename, "open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, s.ChunkSize)
	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return errf(KindIOError, filename, "read chunk %d: %v", i, err)
		}
		chunk := buf[:n]
		sum := sha256.Sum256(chunk)

		frame := codec.NewFileChunk(
			filename, i, totalChunks,
			codec.EncodeChunkBytes(chunk),
			hex.EncodeToString(sum[:]),
			wholeDigest,
		)
		if err := emit(frame); err != nil {
			return err
		}

		if i != totalChunks-1 {
			select {
			case <-time.After(InterChunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
