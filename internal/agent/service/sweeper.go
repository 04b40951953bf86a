package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	errx "github.com/concertbot/server/internal/core/error"
	logx "github.com/concertbot/server/pkg/logger"
)

// IdleSessions is implemented by session stores without native expiry.
type IdleSessions interface {
	IdleSince(cutoff time.Time) []string
}

// Sweeper ends sessions that have not been saved for longer than ttl, on a
// cron schedule. Redis-backed sessions expire by key TTL and need no sweeper.
type Sweeper struct {
	svc  *Service
	idle IdleSessions
	ttl  time.Duration
	cron *cron.Cron
	lock sync.Mutex
}

func NewSweeper(svc *Service, idle IdleSessions, ttl time.Duration, schedule string) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, errors.New("sweeper: ttl must be positive")
	}
	sw := &Sweeper{svc: svc, idle: idle, ttl: ttl, cron: cron.New()}
	if _, err := sw.cron.AddFunc(schedule, sw.tick); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}
	return sw, nil
}

func (sw *Sweeper) Start() {
	sw.cron.Start()
	logx.Info().Dur("ttl", sw.ttl).Msg("idle session sweeper started")
}

// Stop waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}

func (sw *Sweeper) tick() {
	if !sw.lock.TryLock() {
		logx.Warn().Msg("previous session sweep still running, skipping tick")
		return
	}
	defer sw.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if n := sw.Sweep(ctx); n > 0 {
		logx.Info().Int("ended", n).Msg("idle sessions swept")
	}
}

// Sweep ends every idle session and returns how many were ended.
func (sw *Sweeper) Sweep(ctx context.Context) int {
	cutoff := sw.svc.now().Add(-sw.ttl)
	ended := 0
	for _, id := range sw.idle.IdleSince(cutoff) {
		if err := sw.svc.EndSession(ctx, id); err != nil {
			if errors.Is(err, errx.ErrSessionBusy) {
				logx.Debug().Str("session_id", id).Msg("idle session busy, retry on next sweep")
				continue
			}
			logx.Warn().Err(err).Str("session_id", id).Msg("failed to end idle session")
			continue
		}
		ended++
	}
	return ended
}
