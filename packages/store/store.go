// Package store persists queued comments and owns the status state machine.
// Every status mutation is one atomic id-keyed update validated against the
// transition lattice in domain.
package store

import (
	"context"
	"errors"
	"fmt"

	"commentbot/packages/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("comment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("comment text is only editable while pending")
)

type Store interface {
	InsertComment(ctx context.Context, c domain.QueuedComment) error
	GetComment(ctx context.Context, id string) (domain.QueuedComment, error)
	ListComments(ctx context.Context, statuses ...domain.CommentStatus) ([]domain.QueuedComment, error)

	// Transition moves a comment along the lattice, persisting reason with
	// terminal failures. It returns ErrInvalidTransition when the edge is not
	// in the lattice, which is also the duplicate-dequeue no-op signal.
	Transition(ctx context.Context, id string, to domain.CommentStatus, reason string) error

	// UpdateText edits the outgoing text; allowed only while PENDING.
	UpdateText(ctx context.Context, id, text string) error

	// Approve atomically applies an optional edit and the approve transition.
	Approve(ctx context.Context, id, editedText string, to domain.CommentStatus) error

	MarkProcessed(ctx context.Context, url string) error
	IsProcessed(ctx context.Context, url string) (bool, error)

	TemplatesByCategory(ctx context.Context, cat domain.Category) ([]domain.Template, error)
	UpsertTemplate(ctx context.Context, t domain.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	IncrementTemplateUse(ctx context.Context, id string) error

	IncrementDailyCount(ctx context.Context, day string, status domain.CommentStatus) error
	GetDailyCounts(ctx context.Context, day string) (domain.DailyCounts, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error

	Close()
}

func checkTransition(from, to domain.CommentStatus) error {
	if !domain.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func checkApproveTarget(to domain.CommentStatus) error {
	if to != domain.StatusApproved && to != domain.StatusWaitingForBot {
		return fmt.Errorf("%w: approve target must be approved or waiting_for_bot, got %s", ErrInvalidTransition, to)
	}
	return nil
}

// SeedTemplates inserts policy template bodies that the store does not know
// yet, keyed by category and body, leaving existing use counts untouched.
func SeedTemplates(ctx context.Context, s Store, byCategory map[string][]string) error {
	for cat, bodies := range byCategory {
		existing, err := s.TemplatesByCategory(ctx, domain.Category(cat))
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(existing))
		for _, t := range existing {
			known[t.Body] = true
		}
		for _, body := range bodies {
			if known[body] {
				continue
			}
			t := domain.Template{
				ID:       uuid.NewString(),
				Category: domain.Category(cat),
				Body:     body,
			}
			if err := s.UpsertTemplate(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}
