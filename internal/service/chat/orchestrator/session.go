package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatflow/internal/domain"
	"chatflow/internal/domain/models/chat"
	chatSvc "chatflow/internal/domain/services/chat"
	"chatflow/internal/service/chat/scheduler"
)

// sessionKeeper renews a conversation's server-side TTL while it is the
// active one. It re-arms the "session-renew" timer on the shared
// scheduler every interval; whenever the remaining TTL drops to the
// threshold, it calls the renewal endpoint and resets the expiry to
// now + returned TTL.
//
// Renewal failures are logged and retried on the next tick. They never
// reach the transcript and never disturb stream processing.
type sessionKeeper struct {
	transport chatSvc.Transport
	sched     *scheduler.Scheduler
	req       chat.SessionRequest
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	expiry  time.Time
	stopped bool
}

func newSessionKeeper(transport chatSvc.Transport, sched *scheduler.Scheduler, req chat.SessionRequest,
	threshold, interval time.Duration, logger *slog.Logger) *sessionKeeper {
	return &sessionKeeper{
		transport: transport,
		sched:     sched,
		req:       req,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

// start records the probed TTL and arms the renewal timer.
func (k *sessionKeeper) start(ttlSeconds int) {
	k.mu.Lock()
	k.expiry = k.sched.Clock().Now().Add(time.Duration(ttlSeconds) * time.Second)
	k.mu.Unlock()

	k.sched.Schedule(timerSessionRenew, k.interval, k.tick)
}

// stop terminates renewal. Safe to call multiple times. Callers arming
// a successor keeper must stop the old one first: the timer name is
// shared.
func (k *sessionKeeper) stop() {
	k.mu.Lock()
	k.stopped = true
	k.mu.Unlock()
	k.sched.Cancel(timerSessionRenew)
}

func (k *sessionKeeper) tick() {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	remaining := k.expiry.Sub(k.sched.Clock().Now())
	k.mu.Unlock()

	if remaining <= k.threshold {
		k.renew(remaining)
	}

	// Holding the lock across the re-arm pairs it with stop: once stop
	// returns, no further tick can be scheduled.
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.stopped {
		k.sched.Schedule(timerSessionRenew, k.interval, k.tick)
	}
}

func (k *sessionKeeper) renew(remaining time.Duration) {
	ttl, err := k.transport.RenewSession(context.Background(), k.req)
	if errors.Is(err, domain.ErrSessionExpired) {
		// Gone server-side; further renewal attempts are pointless.
		k.logger.Warn("session expired, renewal stopped",
			"conversation_id", k.req.ConversationID,
			"error", err,
		)
		k.mu.Lock()
		k.stopped = true
		k.mu.Unlock()
		return
	}
	if err != nil {
		// Retried on the next tick; the active stream is unaffected.
		k.logger.Warn("session renewal failed",
			"conversation_id", k.req.ConversationID,
			"remaining", remaining,
			"error", err,
		)
		return
	}

	k.mu.Lock()
	k.expiry = k.sched.Clock().Now().Add(time.Duration(ttl) * time.Second)
	k.mu.Unlock()

	k.logger.Debug("session renewed",
		"conversation_id", k.req.ConversationID,
		"ttl_seconds", ttl,
	)
}

// remainingTTL reports the locally tracked time to expiry.
func (k *sessionKeeper) remainingTTL() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.expiry.Sub(k.sched.Clock().Now())
}
