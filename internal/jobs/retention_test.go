package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type mockMessageRepo struct {
	mu         sync.Mutex
	pruneCalls []time.Time
	pruneCount int64
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) FindByChannelAndExternalID(ctx context.Context, ch model.Channel, externalID string) (*model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}

func (m *mockMessageRepo) UpsertByExternalID(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) UpdateStatusByExternalID(ctx context.Context, ch model.Channel, externalID string, status model.MessageStatus, errorDetail *string, at time.Time) (int64, error) {
	return 0, nil
}

func (m *mockMessageRepo) CountByChannel(ctx context.Context, ch model.Channel) (int, error) {
	return 0, nil
}

func (m *mockMessageRepo) CountByStatus(ctx context.Context, status model.MessageStatus) (int, error) {
	return 0, nil
}

func (m *mockMessageRepo) PruneRawPayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls = append(m.pruneCalls, olderThan)
	return m.pruneCount, nil
}

func (m *mockMessageRepo) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.pruneCalls...)
}

func TestRetentionJob(t *testing.T) {
	t.Run("prunes immediately on start", func(t *testing.T) {
		repo := &mockMessageRepo{pruneCount: 3}
		job := NewRetentionJob(repo, 30*24*time.Hour, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return len(repo.calls()) >= 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("cutoff reflects retention window", func(t *testing.T) {
		repo := &mockMessageRepo{}
		job := NewRetentionJob(repo, 48*time.Hour, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return len(repo.calls()) >= 1
		}, time.Second, 10*time.Millisecond)

		cutoff := repo.calls()[0]
		expected := time.Now().Add(-48 * time.Hour)
		assert.WithinDuration(t, expected, cutoff, time.Minute)
	})

	t.Run("stop terminates the loop", func(t *testing.T) {
		repo := &mockMessageRepo{}
		job := NewRetentionJob(repo, time.Hour, 10*time.Millisecond)

		job.Start()
		assert.Eventually(t, func() bool {
			return len(repo.calls()) >= 2
		}, time.Second, 5*time.Millisecond)

		job.Stop()
		calls := len(repo.calls())
		time.Sleep(50 * time.Millisecond)
		assert.LessOrEqual(t, len(repo.calls()), calls+1)
	})
}
