package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	killqueue "github.com/okian/connect-extensions/internal/adapters/mq/queue"
	"github.com/okian/connect-extensions/pkg/logger"
)

// RunningJob is a live job together with the content it belongs to.
type RunningJob struct {
	connect.Job
	ContentName string `json:"content_name"`
}

// KillTarget names one job to stop.
type KillTarget struct {
	GUID string `json:"guid"`
	Key  string `json:"key"`
}

// KillReceipt reports how many kill requests were queued. Duplicates are
// jobs whose kill was already pending.
type KillReceipt struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// RunningJobs lists the running jobs of every content item the visitor
// owns, at most listConcurrency listings at a time.
func (s *Service) RunningJobs(ctx context.Context, sessionToken string) ([]RunningJob, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	items, err := c.MyContent(ctx)
	if err != nil {
		return nil, err
	}

	perItem := make([][]connect.Job, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)
	for i, item := range items {
		g.Go(func() error {
			jobs, err := c.ListJobs(gctx, item.GUID)
			if connect.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("list jobs of %s: %w", item.GUID, err)
			}
			perItem[i] = jobs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []RunningJob{}
	for i, jobs := range perItem {
		for _, j := range jobs {
			if j.Running() {
				out = append(out, RunningJob{Job: j, ContentName: items[i].DisplayName()})
			}
		}
	}
	return out, nil
}

// EnqueueKills queues asynchronous kills of the given jobs, acting as the
// visitor. Queuing stops at the first rejection; a full queue returns
// killqueue.ErrFull with the receipt of what was accepted.
func (s *Service) EnqueueKills(ctx context.Context, sessionToken string, targets []KillTarget) (KillReceipt, error) {
	if len(targets) == 0 {
		return KillReceipt{}, ErrNoKillTargets
	}
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return KillReceipt{}, err
	}

	var receipt KillReceipt
	for i, t := range targets {
		if t.GUID == "" || t.Key == "" {
			receipt.Rejected = len(targets) - i
			return receipt, fmt.Errorf("%w: job %d needs guid and key", ErrNoKillTargets, i)
		}
		key := killKey(t.GUID, t.Key)
		if !s.inflight.Claim(ctx, key) {
			receipt.Duplicates++
			continue
		}
		err := s.kills.Enqueue(ctx, killqueue.KillRequest{
			ContentGUID: t.GUID,
			JobKey:      t.Key,
			APIKey:      c.APIKey(),
			RequestID:   logger.RequestID(ctx),
			EnqueuedAt:  s.now(),
		})
		if err != nil {
			s.inflight.Release(ctx, key)
			receipt.Rejected = len(targets) - i
			if errors.Is(err, killqueue.ErrFull) {
				s.logger.Warn(ctx, "kill queue full", logger.Int("accepted", receipt.Accepted))
			}
			return receipt, err
		}
		receipt.Accepted++
	}
	return receipt, nil
}

func killKey(guid, key string) string { return guid + "/" + key }
