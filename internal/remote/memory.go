package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"mediadex/internal/index"
	"mediadex/internal/model"
)

const defaultMemoryPageSize = 100

// deltaEvent is one entry in the memory remote's change journal. Exactly one
// of entry and deletedID is set.
type deltaEvent struct {
	entry     *model.RemoteEntry
	deletedID string
}

// Memory is an in-memory implementation of the RemoteSource interface with a
// real change journal, so incremental sync is exercisable without a network.
// Cursors are offsets into the journal. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	files    map[string]model.RemoteEntry
	content  map[string][]byte
	frames   map[string][]byte
	journal  []deltaEvent
	pageSize int

	// Test knobs.
	failListCalls  int                    // fail this many upcoming list calls
	cursorsInvalid bool                   // reject every delta cursor
	pageHook       func(pageToken string) // runs before each ListAll page is returned
}

// NewMemory creates an empty in-memory remote source.
func NewMemory() *Memory {
	return &Memory{
		files:    make(map[string]model.RemoteEntry),
		content:  make(map[string][]byte),
		frames:   make(map[string][]byte),
		pageSize: defaultMemoryPageSize,
	}
}

// AddFile creates or replaces a file and records the change in the journal.
func (m *Memory) AddFile(entry model.RemoteEntry, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[entry.ID] = entry
	m.content[entry.ID] = content
	e := entry
	m.journal = append(m.journal, deltaEvent{entry: &e})
}

// RemoveFile deletes a file and records the deletion in the journal.
func (m *Memory) RemoveFile(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	delete(m.content, id)
	delete(m.frames, id)
	m.journal = append(m.journal, deltaEvent{deletedID: id})
}

// SetFrame sets the still frame returned for a video, at any offset.
func (m *Memory) SetFrame(id string, frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[id] = frame
}

// SetPageSize sets the listing page size.
func (m *Memory) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// FailNextLists makes the next n list calls return a transient error.
func (m *Memory) FailNextLists(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failListCalls = n
}

// InvalidateCursors makes every delta request fail with ErrCursorInvalid.
func (m *Memory) InvalidateCursors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursorsInvalid = true
}

// SetPageHook installs a hook run before each full-listing page is returned,
// receiving the page's next-page token.
func (m *Memory) SetPageHook(fn func(pageToken string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageHook = fn
}

// ListAll returns one page of the full file set, ordered by ID. Page tokens
// are numeric offsets; the final page carries a cursor pointing at the
// current end of the journal.
func (m *Memory) ListAll(ctx context.Context, pageToken string) (*index.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failListCalls > 0 {
		m.failListCalls--
		return nil, fmt.Errorf("memory remote: transient listing failure")
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("memory remote: bad page token %q", pageToken)
		}
		start = n
	}

	ids := make([]string, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	end := start + m.pageSize
	if end > len(ids) {
		end = len(ids)
	}
	if start > end {
		start = end
	}

	page := &index.ListPage{}
	for _, id := range ids[start:end] {
		page.Entries = append(page.Entries, m.files[id])
	}
	if end < len(ids) {
		page.PageToken = strconv.Itoa(end)
	} else {
		page.Cursor = strconv.Itoa(len(m.journal))
	}

	if m.pageHook != nil {
		m.pageHook(page.PageToken)
	}
	return page, nil
}

// ListDelta returns journal entries after the given cursor, one page at a
// time. Later events for the same file supersede earlier ones within a page
// only by order of application.
func (m *Memory) ListDelta(ctx context.Context, cursor string) (*index.DeltaPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursorsInvalid {
		return nil, index.ErrCursorInvalid
	}
	if m.failListCalls > 0 {
		m.failListCalls--
		return nil, fmt.Errorf("memory remote: transient delta failure")
	}

	from, err := strconv.Atoi(cursor)
	if err != nil || from < 0 || from > len(m.journal) {
		return nil, index.ErrCursorInvalid
	}

	end := from + m.pageSize
	if end > len(m.journal) {
		end = len(m.journal)
	}

	page := &index.DeltaPage{
		Cursor:  strconv.Itoa(end),
		HasMore: end < len(m.journal),
	}
	for _, ev := range m.journal[from:end] {
		if ev.entry != nil {
			page.Entries = append(page.Entries, *ev.entry)
			continue
		}
		page.DeletedIDs = append(page.DeletedIDs, ev.deletedID)
	}
	return page, nil
}

// GetBytes returns the stored content of a file.
func (m *Memory) GetBytes(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.content[id]
	if !ok {
		return nil, fmt.Errorf("memory remote: no such file %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// FrameBytes returns the configured still frame for a video, at any offset.
func (m *Memory) FrameBytes(ctx context.Context, id string, offset time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, ok := m.frames[id]
	if !ok {
		return nil, index.ErrFrameUnavailable
	}
	return frame, nil
}

// Compile-time check that Memory implements the remote source interface.
var _ index.RemoteSource = (*Memory)(nil)
