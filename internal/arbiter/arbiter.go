// Package arbiter implements the Clipboard Loop Arbiter spec.md §4.6
// (C6): the decision logic that guarantees the same content never
// ping-pongs between peers, a local change propagates at most once,
// and a remote application is never re-observed and re-sent. There is
// no teacher analogue for this exact loop-breaking state machine — it
// is grounded on spec.md §4.6.2's decision table directly, built in
// the small-struct-plus-method style the teacher uses throughout
// (e.g. Node's mutex-guarded fields in node.go).
package arbiter

import (
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of observe_local: either Send (propagate)
// or Skip (with a reason for logging/diagnostics).
type Decision struct {
	Send       bool
	SkipReason SkipReason
}

// SkipReason names why observe_local declined to propagate a local
// change.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipSuppressed SkipReason = "suppressed"
	SkipDuplicate  SkipReason = "duplicate"
	SkipEcho       SkipReason = "echo"
	SkipTempPath   SkipReason = "temp_path"
)

// Clock abstracts monotonic time so tests can control it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Arbiter holds the last-seen fingerprints and timing state spec.md
// §4.6.2 describes. The zero value is not usable; construct with New.
type Arbiter struct {
	mu sync.Mutex

	clock       Clock
	updateDelay time.Duration

	lastLocalFingerprint  string
	lastLocalTime         time.Time
	lastRemoteFingerprint string
	lastRemoteTime        time.Time
	suppressUntil         time.Time

	// tempPathIndicators flags local text observations that look like
	// paths the file engine wrote, so a just-received file path is
	// never echoed back out as plain text (spec.md §4.6.2 step 5).
	tempPathIndicators []string
}

// New builds an Arbiter with the given update_delay (used both for
// the echo-detection window and the post-apply suppression window,
// per spec.md §4.6.2) and the configured temp-path indicator
// substrings.
func New(updateDelay time.Duration, tempPathIndicators []string) *Arbiter {
	return &Arbiter{
		clock:              realClock{},
		updateDelay:        updateDelay,
		tempPathIndicators: tempPathIndicators,
	}
}

// WithClock overrides the clock source, for deterministic tests.
func (a *Arbiter) WithClock(c Clock) *Arbiter {
	a.clock = c
	return a
}

// ObserveLocal implements spec.md §4.6.2's observe_local decision
// table. text is used only for the temp-path heuristic on KindText
// observations; callers pass the already-computed fingerprint.
func (a *Arbiter) ObserveLocal(kind Kind, fingerprint, text string) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()

	if now.Before(a.suppressUntil) {
		return Decision{SkipReason: SkipSuppressed}
	}
	if fingerprint == a.lastLocalFingerprint {
		return Decision{SkipReason: SkipDuplicate}
	}
	if fingerprint == a.lastRemoteFingerprint && now.Sub(a.lastRemoteTime) < 2*a.updateDelay {
		return Decision{SkipReason: SkipEcho}
	}
	if kind == KindText && a.looksLikeTempPath(text) {
		return Decision{SkipReason: SkipTempPath}
	}

	a.lastLocalFingerprint = fingerprint
	a.lastLocalTime = now
	return Decision{Send: true}
}

// ApplyOutcome is the result of apply_remote: either Applied (the
// clipboard adapter accepted the content) or Ignored with a reason.
type ApplyOutcome struct {
	Applied bool
	Ignored IgnoreReason
}

// IgnoreReason names why apply_remote declined to touch the
// clipboard.
type IgnoreReason string

const (
	IgnoreNone     IgnoreReason = ""
	IgnoreOwnEcho  IgnoreReason = "own_echo"
	IgnoreApplyErr IgnoreReason = "adapter_error"
)

// ApplyRemote implements spec.md §4.6.2's apply_remote decision
// table. setContent is called to actually write the clipboard; it is
// invoked at most once and only when the content is not our own echo.
func (a *Arbiter) ApplyRemote(fingerprint string, setContent func() error) ApplyOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if fingerprint == a.lastLocalFingerprint {
		return ApplyOutcome{Ignored: IgnoreOwnEcho}
	}

	if err := setContent(); err != nil {
		return ApplyOutcome{Ignored: IgnoreApplyErr}
	}

	now := a.clock.Now()
	a.lastLocalFingerprint = fingerprint
	a.lastLocalTime = now
	a.lastRemoteFingerprint = fingerprint
	a.lastRemoteTime = now
	a.suppressUntil = now.Add(a.updateDelay)
	return ApplyOutcome{Applied: true}
}

func (a *Arbiter) looksLikeTempPath(text string) bool {
	for _, indicator := range a.tempPathIndicators {
		if indicator != "" && strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}
