package workspace

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const DefaultCleanupSchedule = "@every 30m"

// Expirer lists and removes expired sessions.
type Expirer interface {
	Expired(ctx context.Context, now time.Time) ([]string, error)
	Revoke(ctx context.Context, id string) error
}

// Teardown releases in-memory state held for a session.
type Teardown func(ctx context.Context, sessionID string)

// Cleaner periodically removes expired sessions together with the uploads
// only they referenced.
type Cleaner struct {
	svc      *Service
	sessions Expirer
	teardown Teardown
	cron     *cron.Cron
	now      func() time.Time
}

func NewCleaner(svc *Service, sessions Expirer, teardown Teardown) *Cleaner {
	return &Cleaner{
		svc:      svc,
		sessions: sessions,
		teardown: teardown,
		now:      time.Now,
	}
}

// Start schedules Sweep with a cron spec such as "@every 30m" or "0 * * * *".
// The schedule stops when ctx is done.
func (c *Cleaner) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(schedule, func() {
		removed, err := c.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Msg("session cleanup failed")
			return
		}
		if removed > 0 {
			log.Info().Int("sessions", removed).Msg("expired sessions cleaned up")
		}
	}); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	c.cron.Start()
	go func() {
		<-ctx.Done()
		<-c.cron.Stop().Done()
	}()
	return nil
}

// Sweep tears down every expired session once and returns how many it removed.
func (c *Cleaner) Sweep(ctx context.Context) (int, error) {
	ids, err := c.sessions.Expired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if c.teardown != nil {
			c.teardown(ctx, id)
		}
		paths, err := c.svc.exclusiveUploadPaths(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("session", id).Msg("list uploads for cleanup failed")
		}
		if err := c.sessions.Revoke(ctx, id); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("revoke expired session failed")
			continue
		}
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", p).Msg("remove upload failed")
			}
		}
		removed++
	}
	return removed, nil
}
