// Package pairinglog implements the pairing-attempt audit ledger
// SPEC_FULL.md §4 adds on top of spec.md: a durable record of every
// handshake's accept/reject/invalidate outcome, supplementing the
// one-line "6-digit code confirmed out of band" mention in spec.md §7
// (original_source/utils/security/pairing.py). It is additive only —
// it changes no invariant of C4's pass/fail decision, only its audit
// trail. Grounded on legacy-keysaver/storage.go's sql.Open("sqlite",
// ...) + schema-init convention, swapping its encrypted-key-blob
// schema for a plain append-only attempts table.
package pairinglog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome is the result of one handshake attempt, as seen by C4.
type Outcome string

const (
	OutcomeFirstAuthorized Outcome = "first_authorized"
	OutcomeAuthorized      Outcome = "authorized"
	OutcomeRejected        Outcome = "rejected"
	OutcomeTokenInvalid    Outcome = "token_invalid"
)

// Attempt is one row of the ledger.
type Attempt struct {
	ID         string
	DeviceID   string
	DeviceName string
	Platform   string
	Outcome    Outcome
	Reason     string
	Timestamp  time.Time
}

// Ledger is a SQLite-backed append-only log of pairing attempts.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pairinglog: open db: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pairinglog: init schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pairing_attempts (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		device_name TEXT,
		platform TEXT,
		outcome TEXT NOT NULL,
		reason TEXT,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pairing_attempts_device ON pairing_attempts(device_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error { return l.db.Close() }

// Record appends one pairing attempt to the ledger.
func (l *Ledger) Record(a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	_, err := l.db.Exec(
		`INSERT INTO pairing_attempts (id, device_id, device_name, platform, outcome, reason, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.DeviceName, a.Platform, string(a.Outcome), a.Reason, a.Timestamp.Unix(),
	)
	return err
}

// ListByDevice returns every recorded attempt for deviceID, most
// recent first.
func (l *Ledger) ListByDevice(deviceID string) ([]Attempt, error) {
	rows, err := l.db.Query(
		`SELECT id, device_id, device_name, platform, outcome, reason, ts FROM pairing_attempts WHERE device_id = ? ORDER BY ts DESC`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// List returns every recorded attempt, most recent first.
func (l *Ledger) List() ([]Attempt, error) {
	rows, err := l.db.Query(`SELECT id, device_id, device_name, platform, outcome, reason, ts FROM pairing_attempts ORDER BY ts DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// HandshakeRecorder adapts a Ledger to handshake.AttemptRecorder so
// the responder side of C4 can audit every attempt without pairinglog
// depending on the handshake package.
type HandshakeRecorder struct {
	Ledger *Ledger
}

// Record satisfies handshake.AttemptRecorder. Write failures are
// logged-would-be but swallowed: a lost audit row must never fail the
// handshake it is observing.
func (r *HandshakeRecorder) Record(deviceID, deviceName, platform, outcome, reason string) {
	if r.Ledger == nil {
		return
	}
	_ = r.Ledger.Record(Attempt{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Platform:   platform,
		Outcome:    Outcome(outcome),
		Reason:     reason,
	})
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var outcome string
		var ts int64
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.DeviceName, &a.Platform, &outcome, &a.Reason, &ts); err != nil {
			return nil, err
		}
		a.Outcome = Outcome(outcome)
		a.Timestamp = time.Unix(ts, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}
