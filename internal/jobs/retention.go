package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/repository"
)

// RetentionJob periodically strips raw webhook payloads from messages older
// than the configured retention window. The normalized columns stay; only
// the provider's original JSON is dropped.
type RetentionJob struct {
	messageRepo repository.MessageRepository
	retention   time.Duration
	interval    time.Duration
	done        chan struct{}
}

func NewRetentionJob(messageRepo repository.MessageRepository, retention, interval time.Duration) *RetentionJob {
	return &RetentionJob{
		messageRepo: messageRepo,
		retention:   retention,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *RetentionJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("retention", j.retention).
		Msg("retention job started")
}

func (j *RetentionJob) Stop() {
	close(j.done)
	log.Info().Msg("retention job stopped")
}

func (j *RetentionJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.prune()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.prune()
		}
	}
}

func (j *RetentionJob) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	count, err := j.messageRepo.PruneRawPayloads(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune raw payloads")
		return
	}
	if count > 0 {
		log.Info().
			Int64("count", count).
			Time("cutoff", cutoff).
			Msg("pruned raw payloads")
	}
}
