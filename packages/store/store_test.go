package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"commentbot/packages/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []domain.CommentStatus{
	domain.StatusPending,
	domain.StatusApproved,
	domain.StatusWaitingForBot,
	domain.StatusPosting,
	domain.StatusPosted,
	domain.StatusFailed,
	domain.StatusRejected,
}

func insertWithStatus(t *testing.T, m *MemoryStore, id string, status domain.CommentStatus) {
	t.Helper()
	err := m.InsertComment(context.Background(), domain.QueuedComment{
		ID:      id,
		PostURL: "https://example.com/posts/" + id,
		Text:    "hello",
		Status:  status,
	})
	require.NoError(t, err)
}

func TestTransition_FullLattice(t *testing.T) {
	ctx := context.Background()
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			name := fmt.Sprintf("%s_to_%s", from, to)
			t.Run(name, func(t *testing.T) {
				m := NewMemoryStore()
				insertWithStatus(t, m, "c1", from)

				err := m.Transition(ctx, "c1", to, "")
				if domain.ValidTransition(from, to) {
					require.NoError(t, err)
					c, err := m.GetComment(ctx, "c1")
					require.NoError(t, err)
					assert.Equal(t, to, c.Status)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					c, err := m.GetComment(ctx, "c1")
					require.NoError(t, err)
					assert.Equal(t, from, c.Status, "failed transition must not mutate status")
				}
			})
		}
	}
}

func TestTransition_PersistsFailureReason(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusPosting)

	require.NoError(t, m.Transition(ctx, "c1", domain.StatusFailed, "unauthenticated: login checkpoint"))

	c, err := m.GetComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, c.Status)
	assert.Equal(t, "unauthenticated: login checkpoint", c.Error)
}

func TestTransition_UnknownComment(t *testing.T) {
	m := NewMemoryStore()
	err := m.Transition(context.Background(), "nope", domain.StatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateText_OnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	for _, status := range allStatuses {
		m := NewMemoryStore()
		insertWithStatus(t, m, "c1", status)

		err := m.UpdateText(ctx, "c1", "edited")
		if status == domain.StatusPending {
			require.NoError(t, err)
			c, _ := m.GetComment(ctx, "c1")
			assert.Equal(t, "edited", c.Text)
		} else {
			assert.ErrorIs(t, err, ErrNotEditable, "status %s", status)
		}
	}
}

func TestApprove_AppliesEditAtomically(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusPending)

	require.NoError(t, m.Approve(ctx, "c1", "final text", domain.StatusApproved))

	c, err := m.GetComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, c.Status)
	assert.Equal(t, "final text", c.Text)
}

func TestApprove_EmptyEditKeepsText(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusPending)

	require.NoError(t, m.Approve(ctx, "c1", "", domain.StatusWaitingForBot))

	c, _ := m.GetComment(ctx, "c1")
	assert.Equal(t, domain.StatusWaitingForBot, c.Status)
	assert.Equal(t, "hello", c.Text)
}

func TestApprove_ClearsPreviousFailureReason(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusPosting)
	require.NoError(t, m.Transition(ctx, "c1", domain.StatusFailed, "transient: timeout"))

	require.NoError(t, m.Approve(ctx, "c1", "", domain.StatusApproved))

	c, _ := m.GetComment(ctx, "c1")
	assert.Equal(t, domain.StatusApproved, c.Status)
	assert.Empty(t, c.Error)
}

func TestApprove_RejectsBadTarget(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusPending)

	for _, to := range []domain.CommentStatus{
		domain.StatusPosting, domain.StatusPosted, domain.StatusFailed, domain.StatusRejected, domain.StatusPending,
	} {
		err := m.Approve(ctx, "c1", "", to)
		assert.ErrorIs(t, err, ErrInvalidTransition, "target %s", to)
	}
}

func TestApprove_TerminalCommentStaysTerminal(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "c1", domain.StatusRejected)

	err := m.Approve(ctx, "c1", "", domain.StatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListComments_FiltersAndKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	insertWithStatus(t, m, "a", domain.StatusPending)
	insertWithStatus(t, m, "b", domain.StatusWaitingForBot)
	insertWithStatus(t, m, "c", domain.StatusPending)

	pending, err := m.ListComments(ctx, domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)

	all, err := m.ListComments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestProcessedMarks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	seen, err := m.IsProcessed(ctx, "https://example.com/p/1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.MarkProcessed(ctx, "https://example.com/p/1"))

	seen, err = m.IsProcessed(ctx, "https://example.com/p/1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSeedTemplates_IdempotentAndPreservesCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	byCategory := map[string][]string{
		"service": {"We can help, {name}!", "DM us for a quote, {name}."},
		"general": {"Beautiful piece!"},
	}

	require.NoError(t, SeedTemplates(ctx, m, byCategory))

	service, err := m.TemplatesByCategory(ctx, domain.CategoryService)
	require.NoError(t, err)
	require.Len(t, service, 2)
	require.NoError(t, m.IncrementTemplateUse(ctx, service[0].ID))

	// Reseeding the same bodies must not duplicate or reset anything.
	require.NoError(t, SeedTemplates(ctx, m, byCategory))

	service, err = m.TemplatesByCategory(ctx, domain.CategoryService)
	require.NoError(t, err)
	require.Len(t, service, 2)
	var total int64
	for _, tmpl := range service {
		total += tmpl.UseCount
	}
	assert.Equal(t, int64(1), total)
}

func TestDailyCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.IncrementDailyCount(ctx, "2026-08-23", domain.StatusPosted))
	require.NoError(t, m.IncrementDailyCount(ctx, "2026-08-23", domain.StatusPosted))
	require.NoError(t, m.IncrementDailyCount(ctx, "2026-08-23", domain.StatusFailed))

	counts, err := m.GetDailyCounts(ctx, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Posted)
	assert.Equal(t, 1, counts.Failed)

	empty, err := m.GetDailyCounts(ctx, "2026-08-24")
	require.NoError(t, err)
	assert.Zero(t, empty.Posted)
	assert.Zero(t, empty.Failed)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s, err := m.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, s.ScanEnabled)

	s.ScanEnabled = false
	s.MaxPostsPerDay = 3
	require.NoError(t, m.SaveSettings(ctx, s))

	got, err := m.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, got.ScanEnabled)
	assert.Equal(t, 3, got.MaxPostsPerDay)
}

func TestCheckTransitionWrapsSentinel(t *testing.T) {
	err := checkTransition(domain.StatusPosted, domain.StatusPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
