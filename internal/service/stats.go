package service

import (
	"context"
	"fmt"

	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/repository"
)

type StatsService struct {
	accountRepo      repository.AccountRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
}

func NewStatsService(
	accountRepo repository.AccountRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
) *StatsService {
	return &StatsService{
		accountRepo:      accountRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
	}
}

type ChannelStats struct {
	Accounts      int `json:"accounts"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// SystemStats is the admin-facing snapshot of inbox volume per channel plus
// delivery outcomes.
type SystemStats struct {
	Channels map[string]ChannelStats `json:"channels"`
	Statuses map[string]int          `json:"statuses"`
}

func (s *StatsService) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{
		Channels: make(map[string]ChannelStats),
		Statuses: make(map[string]int),
	}

	for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelInstagram, model.ChannelMessenger} {
		accounts, err := s.accountRepo.CountByChannel(ctx, ch)
		if err != nil {
			return nil, fmt.Errorf("count accounts for %s: %w", ch, err)
		}
		conversations, err := s.conversationRepo.CountByChannel(ctx, ch)
		if err != nil {
			return nil, fmt.Errorf("count conversations for %s: %w", ch, err)
		}
		messages, err := s.messageRepo.CountByChannel(ctx, ch)
		if err != nil {
			return nil, fmt.Errorf("count messages for %s: %w", ch, err)
		}
		stats.Channels[string(ch)] = ChannelStats{
			Accounts:      accounts,
			Conversations: conversations,
			Messages:      messages,
		}
	}

	for _, st := range []model.MessageStatus{
		model.MessageStatusReceived, model.MessageStatusSent,
		model.MessageStatusDelivered, model.MessageStatusRead,
		model.MessageStatusFailed,
	} {
		count, err := s.messageRepo.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("count messages with status %s: %w", st, err)
		}
		stats.Statuses[string(st)] = count
	}

	return stats, nil
}
