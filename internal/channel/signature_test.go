package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-app-secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	t.Run("accepts a correctly signed body", func(t *testing.T) {
		header := Sign(body, secret)
		assert.True(t, VerifySignature(body, header, secret))
	})

	t.Run("rejects a tampered body with unchanged signature", func(t *testing.T) {
		header := Sign(body, secret)
		tampered := []byte(`{"object":"whatsapp_business_account","entry":[{}]}`)
		assert.False(t, VerifySignature(tampered, header, secret))
	})

	t.Run("rejects a signature computed with a different secret", func(t *testing.T) {
		header := Sign(body, "other-secret")
		assert.False(t, VerifySignature(body, header, secret))
	})

	t.Run("rejects header without sha256 prefix", func(t *testing.T) {
		assert.False(t, VerifySignature(body, "deadbeef", secret))
	})

	t.Run("rejects header with invalid hex", func(t *testing.T) {
		assert.False(t, VerifySignature(body, "sha256=not-hex-at-all", secret))
	})

	t.Run("rejects empty header", func(t *testing.T) {
		assert.False(t, VerifySignature(body, "", secret))
	})
}
