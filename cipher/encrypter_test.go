package cipher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sharedOnce sync.Once
	shared     *Encrypter
	sharedErr  error
)

// sharedEncrypter amortises scrypt across tests.
func sharedEncrypter(t *testing.T) *Encrypter {
	t.Helper()
	sharedOnce.Do(func() {
		shared, sharedErr = NewEncrypter("correct horse battery staple")
	})
	require.NoError(t, sharedErr)
	return shared
}

// TestEncrypter_RoundTrip verifies Decrypt reverses Encrypt
// Given: an encrypter
// When: a text is encrypted and the result decrypted
// Then: the original text comes back and the cipher text differs from it
func TestEncrypter_RoundTrip(t *testing.T) {
	e := sharedEncrypter(t)

	ct, err := e.Encrypt(context.Background(), "meadow river onyx")
	require.NoError(t, err)
	assert.NotEqual(t, "meadow river onyx", ct)

	pt, err := e.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "meadow river onyx", pt)
}

// TestEncrypter_RandomNonce verifies equal inputs produce different outputs
func TestEncrypter_RandomNonce(t *testing.T) {
	e := sharedEncrypter(t)

	a, err := e.Encrypt(context.Background(), "same")
	require.NoError(t, err)
	b, err := e.Encrypt(context.Background(), "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncrypter_DecryptRejectsGarbage(t *testing.T) {
	e := sharedEncrypter(t)

	for _, input := range []string{"", "not base64!", "c2hvcnQ="} {
		_, err := e.Decrypt(input)
		assert.ErrorIs(t, err, ErrMalformedCipherText, "input %q", input)
	}

	ct, err := e.Encrypt(context.Background(), "tamper")
	require.NoError(t, err)
	tampered := []byte(ct)
	tampered[len(tampered)/2] ^= 'A' ^ 'B'
	_, err = e.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestNewEncrypter_EmptyPassphrase(t *testing.T) {
	_, err := NewEncrypter("")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

// TestEncrypter_WrongKey verifies a different salt yields an incompatible key
func TestEncrypter_WrongKey(t *testing.T) {
	e := sharedEncrypter(t)
	other, err := NewEncrypter("correct horse battery staple", WithSalt([]byte("other salt")))
	require.NoError(t, err)

	ct, err := e.Encrypt(context.Background(), "secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ct)
	assert.ErrorIs(t, err, ErrMalformedCipherText)
}

// TestEncrypter_Delay verifies the artificial latency and its cancellation
// Given: an encrypter with a 30ms delay
// When: a message is encrypted, and again with an already cancelled context
// Then: the first call takes at least 30ms and the second fails with context.Canceled
func TestEncrypter_Delay(t *testing.T) {
	e, err := NewEncrypter("pw", WithDelay(30*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Millisecond, e.Delay())

	start := time.Now()
	m, err := e.EncryptMessage(context.Background(), NewMessage("slow"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.True(t, m.Encrypted())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg := NewMessage("never")
	out, err := e.EncryptMessage(ctx, msg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, msg, out)
}

func TestGenerate(t *testing.T) {
	a := Generate()
	b := Generate()

	assert.NotEqual(t, a.Key, b.Key)
	assert.False(t, a.Encrypted())
	n := len(strings.Fields(a.PlainText))
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 5)

	c := a.WithCipherText("x")
	assert.Equal(t, a.Key, c.Key)
	assert.Equal(t, "x", c.CipherText)
	assert.Empty(t, a.CipherText)
}
