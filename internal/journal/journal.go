package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"cloudpico-bridge/internal/pipeline"
)

// timeLayout has a fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one published (or failed) message.
type Entry struct {
	ID      int64
	SentAt  time.Time
	Topic   string
	Payload string
	Retain  bool
	Err     string
}

// Journal records entries in the background so that publishing never waits
// on the database. Entries that do not fit the queue are dropped and counted.
type Journal struct {
	db      *sql.DB
	queue   chan Entry
	logger  *slog.Logger
	dropped atomic.Uint64
	written atomic.Uint64
}

func New(db *sql.DB, queue int, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, queue: make(chan Entry, queue), logger: logger}
}

// Add queues e without blocking.
func (j *Journal) Add(e Entry) bool {
	select {
	case j.queue <- e:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-j.queue:
					j.write(wctx, e)
				default:
					return ctx.Err()
				}
			}
		case e := <-j.queue:
			j.write(wctx, e)
		}
	}
}

func (j *Journal) write(ctx context.Context, e Entry) {
	if err := j.Insert(ctx, e); err != nil {
		j.logger.Warn("journal: insert failed", "topic", e.Topic, "error", err)
		return
	}
	j.written.Add(1)
}

// Insert stores e synchronously.
func (j *Journal) Insert(ctx context.Context, e Entry) error {
	var errText sql.NullString
	if e.Err != "" {
		errText = sql.NullString{String: e.Err, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO messages (sent_at, topic, payload, retain, error) VALUES (?, ?, ?, ?, ?)`,
		e.SentAt.UTC().Format(timeLayout), e.Topic, e.Payload, e.Retain, errText,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-empty topic
// restricts the result to that topic.
func (j *Journal) Recent(ctx context.Context, topic string, limit int) ([]Entry, error) {
	query := `SELECT id, sent_at, topic, payload, retain, error FROM messages`
	args := []any{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			sentAt string
			errTxt sql.NullString
		)
		if err := rows.Scan(&e.ID, &sentAt, &e.Topic, &e.Payload, &e.Retain, &errTxt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.SentAt, err = time.Parse(timeLayout, sentAt)
		if err != nil {
			return nil, fmt.Errorf("parse sent_at %q: %w", sentAt, err)
		}
		e.Err = errTxt.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries sent before t and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM messages WHERE sent_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the number of entries written and dropped.
func (j *Journal) Stats() (written, dropped uint64) {
	return j.written.Load(), j.dropped.Load()
}

// Link records every message sent through the wrapped link.
type Link struct {
	pipeline.Link
	journal *Journal
	now     func() time.Time
}

func NewLink(inner pipeline.Link, j *Journal) *Link {
	return &Link{Link: inner, journal: j, now: time.Now}
}

func (l *Link) Send(topic string, payload []byte, retain bool) error {
	err := l.Link.Send(topic, payload, retain)
	e := Entry{SentAt: l.now(), Topic: topic, Payload: string(payload), Retain: retain}
	if err != nil {
		e.Err = err.Error()
	}
	l.journal.Add(e)
	return err
}
