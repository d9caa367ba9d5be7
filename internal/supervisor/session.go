// Package supervisor implements the Session Supervisor spec.md §4.7
// (C7): the state machine, reconnect policy, and the concurrent
// sender/receiver pair that drive one peer session end to end. The
// goroutine-pair-plus-context-cancellation shape follows the
// teacher's pingLoop/handleChatStream split in node.go, generalized
// from a fire-and-forget libp2p stream handler into a managed,
// cancellable session loop.
package supervisor

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"time"

	"clipshare-node/internal/arbiter"
	"clipshare-node/internal/clipboard"
	"clipshare-node/internal/codec"
	"clipshare-node/internal/cryptoctx"
	"clipshare-node/internal/transfer"
	"clipshare-node/internal/transport"
)

// IdleReadTimeout is the long idle read deadline spec.md §4.7.4 names.
const IdleReadTimeout = 5 * time.Minute

// PingReplyTimeout bounds how long a keepalive ping may take to answer.
const PingReplyTimeout = 30 * time.Second

// BroadcastWriteTimeout bounds a single frame write.
const BroadcastWriteTimeout = 10 * time.Second

// SessionDeps bundles the per-session collaborators the sender and
// receiver loops need. Created once per established connection.
type SessionDeps struct {
	Conn       transport.Conn
	Crypto     *cryptoctx.Context
	Arbiter    *arbiter.Arbiter
	Adapter    clipboard.Adapter
	Sender     *transfer.Sender
	Receiver   *transfer.Receiver
	Config     SessionConfig
	Advertised *fileSet // local paths most recently advertised via FILE_LIST

	// writeMu serializes sendFrame, which both the sender and the
	// receiver goroutine call.
	writeMu *sync.Mutex
}

// fileSet tracks the local paths behind the most recent FILE_LIST this
// side sent, keyed implicitly by filepath.Base so a later FILE_REQUEST
// (spec.md §4.5.4) can find the content to resend.
type fileSet struct {
	mu    sync.Mutex
	paths []string
}

func (s *fileSet) set(paths []string) {
	s.mu.Lock()
	s.paths = append([]string(nil), paths...)
	s.mu.Unlock()
}

func (s *fileSet) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// SessionConfig carries the few tunables the session loop needs
// directly (the rest live on transfer.Sender/arbiter.Arbiter already).
type SessionConfig struct {
	ClipboardCheckInterval time.Duration
	MinProcessInterval     time.Duration
}

// runSession drives one CONNECTED session's sender and receiver
// concurrently (spec.md §4.7.2) until either stops, then cancels the
// other and returns. Both goroutines observe ctx at every suspension
// point per spec.md §5.
func runSession(ctx context.Context, deps SessionDeps) error {
	if deps.Advertised == nil {
		deps.Advertised = &fileSet{}
	}
	if deps.writeMu == nil {
		deps.writeMu = &sync.Mutex{}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A blocked ReadMessage/WriteMessage does not itself observe
	// sessionCtx, so cancellation (ours or the peer's) is propagated by
	// closing the transport, unblocking whichever side is suspended in
	// an I/O call (spec.md §5: every suspension point must observe
	// cancellation).
	go func() {
		<-sessionCtx.Done()
		_ = deps.Conn.Close()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- runSender(sessionCtx, deps) }()
	go func() { errCh <- runReceiver(sessionCtx, deps) }()

	err := <-errCh
	cancel()
	<-errCh // wait for the other side to notice cancellation and exit
	return err
}

func runSender(ctx context.Context, deps SessionDeps) error {
	interval := deps.Config.ClipboardCheckInterval
	if interval <= 0 {
		interval = 350 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastProcessed time.Time
	minInterval := deps.Config.MinProcessInterval

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(lastProcessed) < minInterval {
				continue
			}
			if err := pollAndSend(ctx, deps); err != nil {
				if err == context.Canceled {
					return nil
				}
				return err
			}
			lastProcessed = time.Now()
		}
	}
}

func pollAndSend(ctx context.Context, deps SessionDeps) error {
	content, err := deps.Adapter.Read()
	if err != nil {
		log.Printf("[supervisor] clipboard read failed: %v", err)
		return nil
	}

	switch content.Kind {
	case clipboard.KindText:
		fp := arbiter.Fingerprint(arbiter.KindText, content.Text, nil)
		decision := deps.Arbiter.ObserveLocal(arbiter.KindText, fp, content.Text)
		if !decision.Send {
			return nil
		}
		return sendFrame(deps, codec.NewText(content.Text))

	case clipboard.KindFileList:
		entries := make([]arbiter.FileListEntry, len(content.Files))
		var paths []string
		for i, f := range content.Files {
			entries[i] = arbiter.FileListEntry{Path: f.Path, Size: f.Size, Mtime: f.Mtime}
			paths = append(paths, f.Path)
		}
		fp := arbiter.Fingerprint(arbiter.KindFileList, "", entries)
		decision := deps.Arbiter.ObserveLocal(arbiter.KindFileList, fp, "")
		if !decision.Send {
			return nil
		}
		listFrame, ok, err := deps.Sender.BuildFileList(paths)
		if err != nil {
			return nil
		}
		deps.Advertised.set(ok)
		if err := sendFrame(deps, listFrame); err != nil {
			return err
		}
		for _, p := range ok {
			if err := deps.Sender.SendFile(ctx, p, func(f codec.Frame) error { return sendFrame(deps, f) }); err != nil {
				log.Printf("[supervisor] file send abandoned: %v", err)
			}
		}
	}
	return nil
}

func sendFrame(deps SessionDeps, f codec.Frame) error {
	plain, err := codec.Serialize(f)
	if err != nil {
		return nil
	}
	ct, err := deps.Crypto.Encrypt(plain)
	if err != nil {
		return err
	}
	deps.writeMu.Lock()
	defer deps.writeMu.Unlock()
	if err := deps.Conn.SetWriteDeadline(time.Now().Add(BroadcastWriteTimeout)); err != nil {
		return err
	}
	if err := deps.Conn.WriteMessage(ct); err != nil {
		return err
	}
	return nil
}

func runReceiver(ctx context.Context, deps SessionDeps) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := deps.Conn.SetReadDeadline(time.Now().Add(IdleReadTimeout)); err != nil {
			return err
		}
		raw, err := deps.Conn.ReadMessage()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				if pingErr := deps.Conn.Ping(time.Now().Add(PingReplyTimeout)); pingErr != nil {
					return pingErr
				}
				continue
			}
			return err
		}

		plain, err := deps.Crypto.Decrypt(raw)
		if err != nil {
			log.Printf("[supervisor] decrypt failed, dropping frame: %v", err)
			continue
		}

		f, err := codec.Parse(plain, 0)
		if err != nil {
			log.Printf("[supervisor] parse failed, dropping frame: %v", err)
			continue
		}

		handleInbound(deps, f)
	}
}

func handleInbound(deps SessionDeps, f codec.Frame) {
	switch f.Type {
	case codec.TypeText:
		fp := arbiter.Fingerprint(arbiter.KindText, f.Content, nil)
		outcome := deps.Arbiter.ApplyRemote(fp, func() error { return deps.Adapter.Write(f.Content) })
		if outcome.Ignored != arbiter.IgnoreNone {
			log.Printf("[supervisor] text application ignored: %s", outcome.Ignored)
		}

	case codec.TypeFileList:
		// Request anything not already in the cache (spec.md §4.5.4): a
		// fresh peer, or one that missed an earlier chunk, re-requests
		// on the next FILE_LIST rather than waiting indefinitely.
		for _, entry := range f.Entries {
			if deps.Receiver.HasDigest(entry.Hash) {
				continue
			}
			if err := sendFrame(deps, codec.NewFileRequest(entry.Filename, entry.Path, entry.Hash)); err != nil {
				log.Printf("[supervisor] FILE_REQUEST send failed for %q: %v", entry.Filename, err)
			}
		}

	case codec.TypeFileRequest:
		for _, p := range deps.Advertised.get() {
			if filepath.Base(p) == f.Filename {
				if err := deps.Sender.SendFile(context.Background(), p, func(chunk codec.Frame) error { return sendFrame(deps, chunk) }); err != nil {
					log.Printf("[supervisor] requested file send failed: %v", err)
				}
				return
			}
		}
		log.Printf("[supervisor] FILE_REQUEST for unknown file %q ignored", f.Filename)

	case codec.TypeFileChunk:
		ev, err := deps.Receiver.HandleChunk(f)
		if err != nil {
			log.Printf("[supervisor] chunk rejected: %v", err)
			return
		}
		if ev != nil {
			log.Printf("[supervisor] file completed: %s -> %s", ev.Filename, ev.Path)
		}
	}
}
