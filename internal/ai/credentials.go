package ai

import (
	"encoding/json"
	"fmt"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
)

// storedCredentials is the JSON shape sealed into BotProfile.EncryptedCredentials.
type storedCredentials struct {
	APIKey string `json:"api_key"`
}

// DecryptAPIKey opens a bot's encrypted credentials blob and returns its
// api_key, or "" if the bot carries no override (falls back to the
// process-default provider credential).
func DecryptAPIKey(cipher *crypto.FieldCipher, encrypted []byte) (string, error) {
	if len(encrypted) == 0 {
		return "", nil
	}
	plain, err := cipher.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt bot credentials: %w", err)
	}
	var creds storedCredentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return "", fmt.Errorf("parse bot credentials: %w", err)
	}
	return creds.APIKey, nil
}
