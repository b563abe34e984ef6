package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type capturingAccountRepo struct {
	fakeAccountRepo
	created *model.CreateAccountParams
}

type fakeSubscriber struct {
	calls []string
	err   error
}

func (f *fakeSubscriber) SubscribeApp(ctx context.Context, pageID, accessToken string) error {
	f.calls = append(f.calls, pageID+"/"+accessToken)
	return f.err
}

func (c *capturingAccountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.ConnectedAccount, error) {
	c.created = &params
	return &model.ConnectedAccount{
		ID:                "acct-1",
		Channel:           params.Channel,
		ExternalAccountID: params.ExternalAccountID,
		AccessToken:       params.AccessToken,
	}, nil
}

func TestAccountService_ConnectAccount(t *testing.T) {
	// 32 bytes hex encoded
	key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

	t.Run("issues api token and stores only its hash", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		svc := NewAccountService(repo, nil, "")

		result, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelMessenger,
			ExternalAccountID: "page-1",
			AccessToken:       "page-token",
		})
		require.NoError(t, err)
		assert.Len(t, result.APIToken, 64)
		require.NotNil(t, repo.created)
		assert.NotEqual(t, result.APIToken, repo.created.APITokenHash)
		assert.Len(t, repo.created.APITokenHash, 64)
	})

	t.Run("encrypts access token at rest when key is set", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		svc := NewAccountService(repo, nil, key)

		result, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelWhatsApp,
			ExternalAccountID: "15550001111",
			AccessToken:       "secret-page-token",
		})
		require.NoError(t, err)

		require.NotNil(t, repo.created.AccessToken)
		assert.NotEqual(t, "secret-page-token", *repo.created.AccessToken)

		decrypted, err := svc.AccessToken(result.Account)
		require.NoError(t, err)
		assert.Equal(t, "secret-page-token", decrypted)
	})

	t.Run("subscribes the app for a messenger page", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		subscriber := &fakeSubscriber{}
		svc := NewAccountService(repo, subscriber, "")

		_, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelMessenger,
			ExternalAccountID: "page-7",
			AccessToken:       "page-token",
		})
		require.NoError(t, err)
		require.Len(t, subscriber.calls, 1)
		assert.Equal(t, "page-7/page-token", subscriber.calls[0])
	})

	t.Run("skips subscription for whatsapp and without token", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		subscriber := &fakeSubscriber{}
		svc := NewAccountService(repo, subscriber, "")

		_, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelWhatsApp,
			ExternalAccountID: "15550001111",
			AccessToken:       "wa-token",
		})
		require.NoError(t, err)

		_, err = svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelInstagram,
			ExternalAccountID: "ig-9",
		})
		require.NoError(t, err)
		assert.Empty(t, subscriber.calls)
	})

	t.Run("subscription failure does not fail the connect", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		subscriber := &fakeSubscriber{err: context.DeadlineExceeded}
		svc := NewAccountService(repo, subscriber, "")

		result, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelInstagram,
			ExternalAccountID: "ig-1",
			AccessToken:       "ig-token",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.APIToken)
	})

	t.Run("stores token verbatim without key", func(t *testing.T) {
		repo := &capturingAccountRepo{}
		svc := NewAccountService(repo, nil, "")

		result, err := svc.ConnectAccount(context.Background(), ConnectAccountParams{
			Channel:           model.ChannelInstagram,
			ExternalAccountID: "ig-1",
			AccessToken:       "plain-token",
		})
		require.NoError(t, err)

		token, err := svc.AccessToken(result.Account)
		require.NoError(t, err)
		assert.Equal(t, "plain-token", token)
	})
}
