package service

import (
	"context"
	"fmt"

	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/repository"
)

// InboxService serves the read side of the inbox: conversation lists and
// message history for one connected account.
type InboxService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	contactRepo      repository.ContactRepository
}

func NewInboxService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	contactRepo repository.ContactRepository,
) *InboxService {
	return &InboxService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		contactRepo:      contactRepo,
	}
}

type ConversationListItem struct {
	model.Conversation
	Contact *model.Contact `json:"contact,omitempty"`
}

type ConversationListResult struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	HasMore       bool                   `json:"hasMore"`
}

func (s *InboxService) ListConversations(ctx context.Context, accountID string, limit, offset int) (*ConversationListResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	convs, err := s.conversationRepo.FindByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	total, err := s.conversationRepo.CountByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}

	items := make([]ConversationListItem, len(convs))
	for i, conv := range convs {
		items[i] = ConversationListItem{Conversation: conv}
		contact, err := s.contactRepo.FindByID(ctx, conv.ContactID)
		if err != nil {
			return nil, fmt.Errorf("load contact: %w", err)
		}
		items[i].Contact = contact
	}

	return &ConversationListResult{
		Conversations: items,
		Total:         total,
		HasMore:       offset+len(items) < total,
	}, nil
}

type MessageListResult struct {
	Messages []model.Message `json:"messages"`
	Total    int             `json:"total"`
	HasMore  bool            `json:"hasMore"`
}

// ListMessages returns the history of one conversation, newest first. The
// accountID guards against reading another account's thread.
func (s *InboxService) ListMessages(ctx context.Context, accountID, conversationID string, limit, offset int) (*MessageListResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conv, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil || conv.AccountID != accountID {
		return nil, nil
	}

	msgs, err := s.messageRepo.FindByConversationID(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	total, err := s.messageRepo.CountByConversationID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	return &MessageListResult{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}
