package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/repository"
	"github.com/chatfold/inbox-server-go/internal/util"
)

// AppSubscriber registers the app for webhook delivery on a page. Satisfied
// by *graph.Client.
type AppSubscriber interface {
	SubscribeApp(ctx context.Context, pageID, accessToken string) error
}

// AccountService manages connected accounts and owns the at-rest handling of
// their page access tokens: tokens are encrypted with AES-GCM when an
// encryption key is configured, stored as-is otherwise.
type AccountService struct {
	accountRepo   repository.AccountRepository
	subscriber    AppSubscriber
	encryptionKey string
}

func NewAccountService(accountRepo repository.AccountRepository, subscriber AppSubscriber, encryptionKey string) *AccountService {
	return &AccountService{
		accountRepo:   accountRepo,
		subscriber:    subscriber,
		encryptionKey: encryptionKey,
	}
}

type ConnectAccountParams struct {
	Channel           model.Channel
	ExternalAccountID string
	DisplayName       *string
	AccessToken       string
	RateLimitPerMin   int
}

type ConnectAccountResult struct {
	Account *model.ConnectedAccount `json:"account"`
	// APIToken is shown exactly once; only its hash is stored.
	APIToken string `json:"apiToken"`
}

// ConnectAccount registers a business account for webhook ingestion and
// issues the API token the owner uses against the inbox read API.
func (s *AccountService) ConnectAccount(ctx context.Context, params ConnectAccountParams) (*ConnectAccountResult, error) {
	apiToken, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate api token: %w", err)
	}
	tokenHash := util.HashToken(apiToken)

	storedToken := params.AccessToken
	if s.encryptionKey != "" && storedToken != "" {
		storedToken, err = util.Encrypt(s.encryptionKey, storedToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt access token: %w", err)
		}
	}

	var accessToken *string
	if storedToken != "" {
		accessToken = &storedToken
	}

	account, err := s.accountRepo.Create(ctx, model.CreateAccountParams{
		Channel:           params.Channel,
		ExternalAccountID: params.ExternalAccountID,
		DisplayName:       params.DisplayName,
		AccessToken:       accessToken,
		APITokenHash:      tokenHash,
		RateLimitPerMin:   params.RateLimitPerMin,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("channel", string(params.Channel)).
		Str("externalAccountId", params.ExternalAccountID).
		Msg("account connected")

	// Messenger and Instagram pages need the app subscribed before Meta
	// delivers their webhooks. Failure is not fatal: the operator can rerun
	// the subscription from the Meta dashboard.
	if s.subscriber != nil && params.AccessToken != "" && params.Channel != model.ChannelWhatsApp {
		if err := s.subscriber.SubscribeApp(ctx, params.ExternalAccountID, params.AccessToken); err != nil {
			log.Warn().Err(err).
				Str("accountId", account.ID).
				Str("externalAccountId", params.ExternalAccountID).
				Msg("app subscription failed, connect anyway")
		}
	}

	return &ConnectAccountResult{Account: account, APIToken: apiToken}, nil
}

// AccessToken returns the usable page access token for an account,
// decrypting it when at-rest encryption is enabled.
func (s *AccountService) AccessToken(account *model.ConnectedAccount) (string, error) {
	if account.AccessToken == nil || *account.AccessToken == "" {
		return "", nil
	}
	if s.encryptionKey == "" {
		return *account.AccessToken, nil
	}
	token, err := util.Decrypt(s.encryptionKey, *account.AccessToken)
	if err != nil {
		return "", fmt.Errorf("decrypt access token: %w", err)
	}
	return token, nil
}

func (s *AccountService) List(ctx context.Context) ([]model.ConnectedAccount, error) {
	return s.accountRepo.List(ctx)
}
