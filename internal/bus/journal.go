package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
)

// JournalEntry is one journaled event with the topic it was published on
// and the wall-clock time it was appended.
type JournalEntry struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal appends published events to a JSON-lines file so analysis runs
// can be audited or replayed after the fact.
type Journal struct {
	path    string
	enabled bool

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewJournal opens (or creates) the journal file at path. A disabled
// journal is a valid no-op sink.
func NewJournal(path string, enabled bool) (*Journal, error) {
	j := &Journal{path: path, enabled: enabled}
	if !enabled {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j.file = file
	j.encoder = json.NewEncoder(file)
	return j, nil
}

// Enabled reports whether entries are being written.
func (j *Journal) Enabled() bool {
	return j.enabled
}

// Append writes one entry and syncs it, so the journal survives a crash
// mid-run. Disabled journals accept and drop entries.
func (j *Journal) Append(topic string, event Event) error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New(errors.CodeInternal, "journal is closed")
	}

	entry := JournalEntry{Event: event, Topic: topic, Timestamp: time.Now()}
	if err := j.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Entries reads journal entries appended after since, oldest first.
// A positive limit caps the number returned. Malformed lines are skipped.
func (j *Journal) Entries(since time.Time, limit int) ([]JournalEntry, error) {
	if !j.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event journal is disabled")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	// Completed-analysis events carry full rankings and traces, so lines
	// can be large.
	const maxLineSize = 1024 * 1024
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	var entries []JournalEntry
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !entry.Timestamp.After(since) {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}

	return entries, nil
}

// Replay republishes journaled entries appended after since, in order.
func (j *Journal) Replay(ctx context.Context, target Bus, since time.Time) error {
	entries, err := j.Entries(since, 0)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := target.Publish(ctx, entry.Topic, entry.Event); err != nil {
			return fmt.Errorf("failed to replay event %s: %w", entry.Event.ID, err)
		}
	}
	return nil
}

// Close closes the journal file. Further Appends fail.
func (j *Journal) Close() error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal: %w", err)
		}
		j.file = nil
		j.encoder = nil
	}
	return nil
}

// JournaledBus appends every published event to a journal before handing
// it to the inner bus.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner so its events are journaled.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Default()
	}
	return &JournaledBus{inner: inner, journal: journal, log: log}
}

// Publish journals the event, then publishes it. Journaling is
// best-effort; a failed write must not block publication.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("failed to journal event",
			"topic", topic,
			"error", err.Error(),
		)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the journal and then the inner bus.
func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		b.log.Warn("failed to close event journal", "error", err.Error())
	}
	return b.inner.Close()
}
