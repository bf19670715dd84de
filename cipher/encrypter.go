package cipher

import (
	"context"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
	defaultSalt = "go-seqworker/cipher"
	keyLength   = chacha20poly1305.KeySize
)

var (
	// ErrEmptyPassphrase is returned when an Encrypter is built without a passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")

	// ErrMalformedCipherText is returned by Decrypt for input it did not produce.
	ErrMalformedCipherText = errors.New("malformed cipher text")
)

// Encrypter seals text with XChaCha20-Poly1305 under a key derived with scrypt.
// It is safe for concurrent use.
type Encrypter struct {
	aead  stdcipher.AEAD
	delay time.Duration
}

// Option configures an Encrypter.
type Option func(*encrypterOptions)

type encrypterOptions struct {
	salt  []byte
	delay time.Duration
}

// WithSalt overrides the scrypt salt.
func WithSalt(salt []byte) Option {
	return func(o *encrypterOptions) {
		if len(salt) > 0 {
			o.salt = salt
		}
	}
}

// WithDelay makes every encryption take at least d, to stand in for slow work.
func WithDelay(d time.Duration) Option {
	return func(o *encrypterOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// NewEncrypter derives the key for passphrase. Key derivation is intentionally
// expensive, so build one Encrypter and share it.
func NewEncrypter(passphrase string, opts ...Option) (*Encrypter, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	o := encrypterOptions{salt: []byte(defaultSalt)}
	for _, opt := range opts {
		opt(&o)
	}

	key, err := scrypt.Key([]byte(passphrase), o.salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	return &Encrypter{aead: aead, delay: o.delay}, nil
}

// Encrypt returns base64(nonce || sealed plaintext).
// When a delay is configured it waits first; a cancelled ctx cuts the wait short.
func (e *Encrypter) Encrypt(ctx context.Context, plainText string) (string, error) {
	if err := e.wait(ctx); err != nil {
		return "", err
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plainText)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// EncryptMessage encrypts m.PlainText and returns m with its cipher text set.
// Its signature matches the worker's transform.
func (e *Encrypter) EncryptMessage(ctx context.Context, m Message) (Message, error) {
	cipherText, err := e.Encrypt(ctx, m.PlainText)
	if err != nil {
		return m, fmt.Errorf("encrypt message %s: %w", m.Key, err)
	}
	return m.WithCipherText(cipherText), nil
}

// Decrypt reverses Encrypt.
func (e *Encrypter) Decrypt(cipherText string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCipherText, err)
	}
	if len(sealed) < e.aead.NonceSize()+e.aead.Overhead() {
		return "", ErrMalformedCipherText
	}

	nonce, body := sealed[:e.aead.NonceSize()], sealed[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCipherText, err)
	}
	return string(plain), nil
}

// Delay returns the configured artificial latency.
func (e *Encrypter) Delay() time.Duration {
	return e.delay
}

func (e *Encrypter) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return nil
	}

	timer := time.NewTimer(e.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
