package services

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_TokenEncryptionRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	key := normalizeKey([]byte("some deployment secret"))

	// 任意令牌加密后都能解密回原文
	properties.Property("decrypt_inverts_encrypt", prop.ForAll(
		func(token string) bool {
			encrypted, err := encryptToken(key, token)
			if err != nil {
				return false
			}
			decrypted, err := decryptToken(key, encrypted)
			if err != nil {
				return false
			}
			return decrypted == token
		},
		gen.AnyString(),
	))

	// 相同明文两次加密产生不同密文（随机 nonce）
	properties.Property("ciphertexts_are_not_deterministic", prop.ForAll(
		func(token string) bool {
			first, err1 := encryptToken(key, token)
			second, err2 := encryptToken(key, token)
			return err1 == nil && err2 == nil && first != second
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestDecryptToken_WrongKeyFails(t *testing.T) {
	key := normalizeKey([]byte("key one"))
	otherKey := normalizeKey([]byte("key two"))

	encrypted, err := encryptToken(key, "oauth-access-token")
	if err != nil {
		t.Fatalf("encryptToken failed: %v", err)
	}

	if _, err := decryptToken(otherKey, encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptToken_GarbageFails(t *testing.T) {
	key := normalizeKey([]byte("key"))
	if _, err := decryptToken(key, "not-base64!!"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}
