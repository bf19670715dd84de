// Package cipher holds the work the demo host hands to its background worker:
// random messages and a deliberately slow authenticated encryption of their text.
package cipher

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// Message is a piece of text identified by a random key.
// CipherText stays empty until the message has been encrypted.
type Message struct {
	Key        uuid.UUID `json:"key"`
	PlainText  string    `json:"plain_text"`
	CipherText string    `json:"cipher_text,omitempty"`
}

// NewMessage returns an unencrypted message with a fresh key.
func NewMessage(plainText string) Message {
	return Message{Key: uuid.New(), PlainText: plainText}
}

// WithCipherText returns a copy of m carrying cipherText.
func (m Message) WithCipherText(cipherText string) Message {
	m.CipherText = cipherText
	return m
}

// Encrypted reports whether the message carries a cipher text.
func (m Message) Encrypted() bool {
	return m.CipherText != ""
}

var words = []string{
	"amber", "basalt", "cedar", "delta", "ember", "fjord", "granite", "harbor",
	"indigo", "juniper", "kelp", "lagoon", "meadow", "nectar", "onyx", "prairie",
	"quartz", "river", "sierra", "tundra", "umber", "valley", "willow", "zephyr",
}

// Generate returns a message with a random key and a short random phrase.
func Generate() Message {
	n := 2 + rand.IntN(4)
	picked := make([]string, n)
	for i := range picked {
		picked[i] = words[rand.IntN(len(words))]
	}
	return NewMessage(strings.Join(picked, " "))
}
