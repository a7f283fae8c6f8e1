// Package cipher encrypts the place names stored with alerts. Tokens are fernet
// (AES-128-CBC + HMAC-SHA256), so keys generated for other fernet
// implementations keep working.
package cipher

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

// A negative ttl tells fernet to skip the token age check; stored locations never expire.
const noExpiry = -1 * time.Second

var ErrInvalidToken = errors.New("location token is invalid or was signed with a different key")

type LocationCipher struct {
	keys []*fernet.Key
}

// New returns a cipher for the url-safe base64 encoded 32 byte key.
func New(encodedKey string) (*LocationCipher, error) {
	k, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("cipher.New: %v", err)
	}

	return &LocationCipher{keys: []*fernet.Key{k}}, nil
}

// GenerateKey returns a new encoded key suitable for New.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}

func (c *LocationCipher) Encrypt(plaintext string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(plaintext), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("cipher.Encrypt: %v", err)
	}
	return string(token), nil
}

func (c *LocationCipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), noExpiry, c.keys)
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}
