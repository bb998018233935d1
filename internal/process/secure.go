package process

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Ошибки шифрования переменных.
var (
	// ErrBadKeySize — ключ не 32 байта.
	ErrBadKeySize = errors.New("secure codec key must be 32 bytes")

	// ErrDecryptFailed — значение не расшифровалось (чужой ключ или порча).
	ErrDecryptFailed = errors.New("failed to decrypt variable value")
)

// SecureCodec шифрует значения чувствительных переменных (secretbox).
//
// Прозрачен для шагов: Context применяет кодек к переменным
// с флагом Sensitive при записи и чтении.
type SecureCodec struct {
	key [32]byte
}

// NewSecureCodec создаёт кодек с 32-байтовым ключом.
func NewSecureCodec(key []byte) (*SecureCodec, error) {
	if len(key) != 32 {
		return nil, ErrBadKeySize
	}
	c := &SecureCodec{}
	copy(c.key[:], key)
	return c, nil
}

// Seal шифрует значение. Nonce генерируется на каждую запись
// и хранится префиксом шифртекста.
func (c *SecureCodec) Seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// Open расшифровывает значение.
func (c *SecureCodec) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, ErrDecryptFailed
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
