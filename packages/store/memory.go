package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"commentbot/packages/domain"
)

// MemoryStore is the fallback store used when DATABASE_URL is unset, and the
// backing for unit tests. Same lattice rules as the postgres implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	comments  map[string]domain.QueuedComment
	order     []string
	processed map[string]bool
	templates map[string]domain.Template
	daily     map[string]domain.DailyCounts
	settings  domain.Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		comments:  make(map[string]domain.QueuedComment),
		processed: make(map[string]bool),
		templates: make(map[string]domain.Template),
		daily:     make(map[string]domain.DailyCounts),
		settings:  domain.Settings{ScanEnabled: true, MaxPostsPerDay: 15, MinDelaySeconds: 240, MaxDelaySeconds: 720},
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) InsertComment(ctx context.Context, c domain.QueuedComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	m.comments[c.ID] = c
	m.order = append(m.order, c.ID)
	return nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id string) (domain.QueuedComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return domain.QueuedComment{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, statuses ...domain.CommentStatus) ([]domain.QueuedComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[domain.CommentStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.QueuedComment
	for _, id := range m.order {
		c := m.comments[id]
		if len(want) == 0 || want[c.Status] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, to domain.CommentStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(c.Status, to); err != nil {
		return err
	}
	c.Status = to
	c.Error = reason
	c.UpdatedAt = time.Now()
	m.comments[id] = c
	return nil
}

func (m *MemoryStore) UpdateText(ctx context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != domain.StatusPending {
		return ErrNotEditable
	}
	c.Text = text
	c.UpdatedAt = time.Now()
	m.comments[id] = c
	return nil
}

func (m *MemoryStore) Approve(ctx context.Context, id, editedText string, to domain.CommentStatus) error {
	if err := checkApproveTarget(to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(c.Status, to); err != nil {
		return err
	}
	if editedText != "" {
		c.Text = editedText
	}
	c.Status = to
	c.Error = ""
	c.UpdatedAt = time.Now()
	m.comments[id] = c
	return nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[url] = true
	return nil
}

func (m *MemoryStore) IsProcessed(ctx context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.processed[url], nil
}

func (m *MemoryStore) TemplatesByCategory(ctx context.Context, cat domain.Category) ([]domain.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Template
	for _, t := range m.templates {
		if t.Category == cat {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertTemplate(ctx context.Context, t domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.templates[t.ID]; ok {
		t.UseCount = existing.UseCount
	}
	m.templates[t.ID] = t
	return nil
}

func (m *MemoryStore) DeleteTemplate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

func (m *MemoryStore) IncrementTemplateUse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.UseCount++
	m.templates[id] = t
	return nil
}

func (m *MemoryStore) IncrementDailyCount(ctx context.Context, day string, status domain.CommentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.daily[day]
	d.Day = day
	switch status {
	case domain.StatusPosted:
		d.Posted++
	case domain.StatusFailed:
		d.Failed++
	}
	m.daily[day] = d
	return nil
}

func (m *MemoryStore) GetDailyCounts(ctx context.Context, day string) (domain.DailyCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.daily[day]
	d.Day = day
	return d, nil
}

func (m *MemoryStore) GetSettings(ctx context.Context) (domain.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemoryStore) SaveSettings(ctx context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *MemoryStore) Close() {}
