package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *mockAuditRepo) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) all() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func TestAsyncLogger_WritesEntries(t *testing.T) {
	repo := &mockAuditRepo{}
	l := NewAsyncLogger(repo, zaptest.NewLogger(t), 16)

	l.Log(context.Background(), Entry{
		UserID:     "u1",
		Action:     ActionCreate,
		EntityType: "order",
		EntityID:   "o1",
	})
	l.Close()

	entries := repo.all()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Equal(t, "o1", entries[0].EntityID)
}

func TestAsyncLogger_CloseDrainsBuffer(t *testing.T) {
	repo := &mockAuditRepo{}
	l := NewAsyncLogger(repo, zaptest.NewLogger(t), 64)

	for i := 0; i < 50; i++ {
		l.Log(context.Background(), Entry{EntityType: "order", EntityID: "o"})
	}
	l.Close()

	assert.Len(t, repo.all(), 50)
}

func TestAsyncLogger_InsertFailureDoesNotPanic(t *testing.T) {
	repo := &mockAuditRepo{err: assert.AnError}
	l := NewAsyncLogger(repo, zaptest.NewLogger(t), 4)

	l.Log(context.Background(), Entry{EntityType: "order", EntityID: "o1"})
	l.Close()

	assert.Empty(t, repo.all())
}
