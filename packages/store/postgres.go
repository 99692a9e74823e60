package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"commentbot/packages/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			post_url TEXT NOT NULL,
			post_author TEXT,
			post_text TEXT,
			category TEXT,
			generated TEXT,
			text TEXT,
			status TEXT NOT NULL,
			error TEXT DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS comments_status_idx ON comments (status)`,
		`CREATE TABLE IF NOT EXISTS processed_posts (url TEXT PRIMARY KEY, seen_at TIMESTAMPTZ DEFAULT now())`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			body TEXT NOT NULL,
			use_count BIGINT DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS daily_counts (day TEXT PRIMARY KEY, posted INT DEFAULT 0, failed INT DEFAULT 0)`,
		`CREATE TABLE IF NOT EXISTS settings (id INT PRIMARY KEY CHECK (id = 1), data JSONB NOT NULL)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

func (s *PostgresStore) InsertComment(ctx context.Context, c domain.QueuedComment) error {
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO comments (id, post_url, post_author, post_text, category, generated, text, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.PostURL, c.PostAuthor, c.PostText, string(c.Category), c.Generated, c.Text, string(c.Status))
	if err != nil {
		return fmt.Errorf("failed to insert comment %s: %w", c.ID, err)
	}
	return nil
}

const commentColumns = `id, post_url, post_author, post_text, category, generated, text, status, error, created_at, updated_at`

func scanComment(row pgx.Row) (domain.QueuedComment, error) {
	var c domain.QueuedComment
	var category, status string
	err := row.Scan(&c.ID, &c.PostURL, &c.PostAuthor, &c.PostText, &category, &c.Generated,
		&c.Text, &status, &c.Error, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.Category = domain.Category(category)
	c.Status = domain.CommentStatus(status)
	return c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (domain.QueuedComment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QueuedComment{}, ErrNotFound
	}
	if err != nil {
		return domain.QueuedComment{}, fmt.Errorf("failed to get comment %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, statuses ...domain.CommentStatus) ([]domain.QueuedComment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments ORDER BY created_at`
	args := []any{}
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		query = `SELECT ` + commentColumns + ` FROM comments WHERE status = ANY($1) ORDER BY created_at`
		args = append(args, strs)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var out []domain.QueuedComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transition is a single conditional row update: the WHERE clause carries the
// set of lattice states that may move to the target, so concurrent callers
// cannot race a comment through an invalid edge.
func (s *PostgresStore) Transition(ctx context.Context, id string, to domain.CommentStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET status = $2, error = $3, updated_at = now() WHERE id = $1 AND status = ANY($4)`,
		id, string(to), reason, transitionSources(to))
	if err != nil {
		return fmt.Errorf("failed to transition comment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		current, err := s.GetComment(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}
	return nil
}

func (s *PostgresStore) UpdateText(ctx context.Context, id, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET text = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, text, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update comment text %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetComment(ctx, id); err != nil {
			return err
		}
		return ErrNotEditable
	}
	return nil
}

func (s *PostgresStore) Approve(ctx context.Context, id, editedText string, to domain.CommentStatus) error {
	if err := checkApproveTarget(to); err != nil {
		return err
	}
	return s.withTransaction(ctx, func(tx pgx.Tx) error {
		query := `UPDATE comments SET status = $2, error = '', updated_at = now() WHERE id = $1 AND status = ANY($3)`
		args := []any{id, string(to), transitionSources(to)}
		if editedText != "" {
			query = `UPDATE comments SET status = $2, error = '', text = $4, updated_at = now() WHERE id = $1 AND status = ANY($3)`
			args = append(args, editedText)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to approve comment %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			row := tx.QueryRow(ctx, `SELECT status FROM comments WHERE id = $1`, id)
			var current string
			if err := row.Scan(&current); errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			} else if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
		}
		return nil
	})
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_posts (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`, url)
	return err
}

func (s *PostgresStore) IsProcessed(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_posts WHERE url = $1)`, url).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) TemplatesByCategory(ctx context.Context, cat domain.Category) ([]domain.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, category, body, use_count FROM templates WHERE category = $1 ORDER BY id`, string(cat))
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		var category string
		if err := rows.Scan(&t.ID, &category, &t.Body, &t.UseCount); err != nil {
			return nil, err
		}
		t.Category = domain.Category(category)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertTemplate(ctx context.Context, t domain.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (id, category, body) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET category = $2, body = $3`,
		t.ID, string(t.Category), t.Body)
	return err
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) IncrementTemplateUse(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE templates SET use_count = use_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementDailyCount(ctx context.Context, day string, status domain.CommentStatus) error {
	var column string
	switch status {
	case domain.StatusPosted:
		column = "posted"
	case domain.StatusFailed:
		column = "failed"
	default:
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO daily_counts (day, %[1]s) VALUES ($1, 1)
		 ON CONFLICT (day) DO UPDATE SET %[1]s = daily_counts.%[1]s + 1`, column), day)
	return err
}

func (s *PostgresStore) GetDailyCounts(ctx context.Context, day string) (domain.DailyCounts, error) {
	d := domain.DailyCounts{Day: day}
	err := s.pool.QueryRow(ctx,
		`SELECT posted, failed FROM daily_counts WHERE day = $1`, day).Scan(&d.Posted, &d.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, nil
	}
	return d, err
}

func (s *PostgresStore) GetSettings(ctx context.Context) (domain.Settings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Settings{ScanEnabled: true, MaxPostsPerDay: 15, MinDelaySeconds: 240, MaxDelaySeconds: 720}, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	var out domain.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, set domain.Settings) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (id, data) VALUES (1, $1) ON CONFLICT (id) DO UPDATE SET data = $1`, raw)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
	slog.Info("Postgres store closed")
}

// transitionSources lists the lattice states allowed to move to the target.
func transitionSources(to domain.CommentStatus) []string {
	all := []domain.CommentStatus{
		domain.StatusPending, domain.StatusApproved, domain.StatusWaitingForBot,
		domain.StatusPosting, domain.StatusPosted, domain.StatusFailed, domain.StatusRejected,
	}
	var out []string
	for _, from := range all {
		if domain.ValidTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}
