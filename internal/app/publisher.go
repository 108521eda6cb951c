package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	killqueue "github.com/okian/connect-extensions/internal/adapters/mq/queue"
	"github.com/okian/connect-extensions/internal/domain/poll"
	"github.com/okian/connect-extensions/internal/domain/publisher"
	"github.com/okian/connect-extensions/pkg/logger"
)

// Contents returns the visitor's own content joined with the live processes
// reported for each item.
func (s *Service) Contents(ctx context.Context, sessionToken string) ([]publisher.ContentWithProcesses, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	var (
		items []connect.Content
		procs []connect.Process
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = c.MyContent(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		procs, err = s.platform.Processes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return publisher.JoinProcesses(items, procs), nil
}

// Content returns one content item as seen by the visitor.
func (s *Service) Content(ctx context.Context, sessionToken, guid string) (connect.Content, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return connect.Content{}, err
	}
	return c.GetContent(ctx, guid)
}

// UpdateContent renames, locks or unlocks a content item.
func (s *Service) UpdateContent(ctx context.Context, sessionToken, guid string, patch connect.ContentPatch) (connect.Content, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return connect.Content{}, err
	}
	updated, err := c.UpdateContent(ctx, guid, patch)
	if err != nil {
		return connect.Content{}, err
	}
	s.logger.Info(ctx, "content updated", logger.String("guid", guid))
	return updated, nil
}

// ContentProcesses returns the live processes of one content item. The
// visitor must be able to see the content.
func (s *Service) ContentProcesses(ctx context.Context, sessionToken, guid string) ([]connect.Process, error) {
	if _, err := s.Content(ctx, sessionToken, guid); err != nil {
		return nil, err
	}
	procs, err := s.platform.Processes(ctx)
	if err != nil {
		return nil, err
	}
	return publisher.FilterProcesses(procs, guid), nil
}

// ContentAuthor returns the owner of a content item.
func (s *Service) ContentAuthor(ctx context.Context, sessionToken, guid string) (connect.User, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return connect.User{}, err
	}
	item, err := c.GetContent(ctx, guid)
	if err != nil {
		return connect.User{}, err
	}
	return c.GetUser(ctx, item.OwnerGUID)
}

// ContentReleases returns the bundles of a content item.
func (s *Service) ContentReleases(ctx context.Context, sessionToken, guid string) ([]connect.Bundle, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return c.ListBundles(ctx, guid)
}

// ContentVisits returns the recorded visits of a content item.
func (s *Service) ContentVisits(ctx context.Context, sessionToken, guid string) ([]connect.Visit, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return c.ContentVisits(ctx, guid)
}

// ContentSummary builds the content manager detail view.
func (s *Service) ContentSummary(ctx context.Context, sessionToken, guid string) (publisher.Summary, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return publisher.Summary{}, err
	}
	item, err := c.GetContent(ctx, guid)
	if err != nil {
		return publisher.Summary{}, err
	}

	var (
		owner  connect.User
		visits []connect.Visit
		procs  []connect.Process
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := c.GetUser(gctx, item.OwnerGUID)
		if err != nil {
			// A missing owner still renders with a blank author card.
			s.logger.Warn(gctx, "content owner lookup failed", logger.String("guid", guid), logger.Error(err))
			return nil
		}
		owner = u
		return nil
	})
	g.Go(func() error {
		var err error
		visits, err = c.ContentVisits(gctx, guid)
		return err
	})
	g.Go(func() error {
		all, err := s.platform.Processes(gctx)
		procs = publisher.FilterProcesses(all, guid)
		return err
	})
	if err := g.Wait(); err != nil {
		return publisher.Summary{}, err
	}
	return publisher.Summarize(item, owner, visits, procs, s.now()), nil
}

// KillJob destroys one job and waits until the platform reports it stopped.
// ErrKillTimeout is returned when the job is still running after the last
// poll.
func (s *Service) KillJob(ctx context.Context, sessionToken, guid, key string) error {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return err
	}
	return s.stopJob(ctx, c, guid, key)
}

func (s *Service) stopJob(ctx context.Context, c *connect.Client, guid, key string) error {
	if err := c.DestroyJob(ctx, guid, key); err != nil {
		return err
	}
	err := poll.Until(ctx, s.killPollAttempts, s.killPollInterval, func(ctx context.Context) (bool, error) {
		job, err := c.GetJob(ctx, guid, key)
		if err != nil {
			return false, err
		}
		return !job.Running(), nil
	})
	if errors.Is(err, poll.ErrExhausted) {
		return fmt.Errorf("%w: %s/%s: %w", ErrKillTimeout, guid, key, err)
	}
	return err
}

// killQueued runs one request taken off the kill queue as the identity
// that enqueued it.
func (s *Service) killQueued(ctx context.Context, r killqueue.KillRequest) error {
	defer s.inflight.Release(ctx, killKey(r.ContentGUID, r.JobKey))
	if s.platform == nil {
		return ErrNoPlatform
	}
	c := s.platform
	if r.APIKey != "" {
		c = c.WithAPIKey(r.APIKey)
	}
	return s.stopJob(ctx, c, r.ContentGUID, r.JobKey)
}
