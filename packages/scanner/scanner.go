// Package scanner runs the sequential scan loop: it renders the feed through
// the scan session, classifies each candidate and stores generated comments
// as PENDING for human review.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"commentbot/packages/classifier"
	"commentbot/packages/config"
	"commentbot/packages/domain"
	"commentbot/packages/generator"
	"commentbot/packages/guard"
	"commentbot/packages/metrics"
	"commentbot/packages/store"

	"github.com/google/uuid"
)

// FeedSession is the scan-role surface the scanner owns exclusively.
type FeedSession interface {
	LoadFeed(ctx context.Context, url string) (string, error)
}

// Sessions resolves the scan session at call time, so a session recreated by
// the supervisor between cycles is picked up instead of a dead pointer.
type Sessions interface {
	Scanning(ctx context.Context) (FeedSession, error)
}

type Scanner struct {
	feedURL    string
	interval   time.Duration
	selectors  config.FeedSelectors
	sessions   Sessions
	classifier *classifier.Classifier
	generator  *generator.Generator
	store      store.Store
	guard      *guard.Guard
}

func New(feedURL string, interval time.Duration, selectors config.FeedSelectors,
	sessions Sessions, cls *classifier.Classifier, gen *generator.Generator,
	st store.Store, g *guard.Guard) *Scanner {
	return &Scanner{
		feedURL:    feedURL,
		interval:   interval,
		selectors:  selectors,
		sessions:   sessions,
		classifier: cls,
		generator:  gen,
		store:      st,
		guard:      g,
	}
}

// Run cycles the scan until ctx is done. Cycle errors are logged, never fatal.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.Info("Scanner started", "feed", s.feedURL, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			settings, err := s.store.GetSettings(ctx)
			if err != nil {
				slog.Error("Failed to read settings", "error", err)
				continue
			}
			if !settings.ScanEnabled {
				continue
			}
			if err := s.ScanOnce(ctx); err != nil {
				slog.Error("Scan cycle failed", "error", err)
			}
		}
	}
}

// ScanOnce processes the feed one post at a time, yielding at most one
// PENDING comment per unseen post.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	sess, err := s.sessions.Scanning(ctx)
	if err != nil {
		return err
	}
	html, err := sess.LoadFeed(ctx, s.feedURL)
	if err != nil {
		return err
	}
	posts, err := ParsePosts(html, s.selectors, s.feedURL)
	if err != nil {
		return err
	}
	slog.Debug("Feed parsed", "candidates", len(posts))

	for _, post := range posts {
		metrics.PostsScanned.Inc()
		if err := s.processCandidate(ctx, post); err != nil {
			slog.Error("Candidate processing failed", "url", post.URL, "error", err)
		}
	}
	return nil
}

func (s *Scanner) processCandidate(ctx context.Context, post domain.CandidatePost) error {
	normalized := guard.NormalizeURL(post.URL)

	if s.guard.Seen(ctx, normalized) {
		metrics.PostsSkipped.WithLabelValues("duplicate").Inc()
		return nil
	}
	if processed, err := s.store.IsProcessed(ctx, normalized); err != nil {
		return err
	} else if processed {
		s.guard.MarkSeen(ctx, normalized)
		metrics.PostsSkipped.WithLabelValues("duplicate").Inc()
		return nil
	}

	// From here on the post counts as processed whatever the outcome;
	// a candidate yields zero or one queued comment, never a retry.
	finish := func() {
		s.guard.MarkSeen(ctx, normalized)
		if err := s.store.MarkProcessed(ctx, normalized); err != nil {
			slog.Warn("Failed to persist processed mark", "url", normalized, "error", err)
		}
	}

	result := s.classifier.Classify(post.Text)
	if result.ShouldSkip {
		finish()
		metrics.PostsSkipped.WithLabelValues("classifier").Inc()
		slog.Debug("Candidate skipped by classifier", "url", normalized, "reasons", result.Reasons)
		return nil
	}

	text, err := s.generator.Generate(ctx, result.Category, post.Text, post.Author)
	if err != nil {
		finish()
		if domain.IsKind(err, domain.FaultGenerationUnavailable) {
			metrics.PostsSkipped.WithLabelValues("generation").Inc()
			slog.Info("Candidate dropped, generation unavailable", "url", normalized, "category", result.Category)
			return nil
		}
		return err
	}

	comment := domain.QueuedComment{
		ID:         uuid.NewString(),
		PostURL:    normalized,
		PostAuthor: post.Author,
		PostText:   post.Text,
		Category:   result.Category,
		Generated:  text,
		Text:       text,
		Status:     domain.StatusPending,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return err
	}
	finish()
	metrics.CommentsGenerated.WithLabelValues(string(result.Category)).Inc()
	slog.Info("Comment queued for approval", "id", comment.ID, "url", normalized,
		"category", result.Category, "score", result.Score)
	return nil
}
