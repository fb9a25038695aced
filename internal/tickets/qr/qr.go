package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-raffle/internal/models"
)

// Receipt is the proof of entry printed into a ticket's QR code.
type Receipt struct {
	CompetitionID string              `json:"competition_id"`
	TicketNumber  int                 `json:"ticket_number"`
	UserID        string              `json:"user_id"`
	Status        models.TicketStatus `json:"status"`
	IssuedAt      time.Time           `json:"issued_at"`
}

var ErrInvalidReceipt = errors.New("invalid receipt")

type Generator struct {
	secret []byte
	Size   int
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:], Size: 256}
}

// Seal encrypts the receipt into a URL-safe string. The string is what the
// QR code carries.
func (g *Generator) Seal(receipt Receipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", err
	}
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Anything not sealed with the same secret is rejected.
func (g *Generator) Open(encoded string) (*Receipt, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	gcm, err := g.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrInvalidReceipt
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	return &receipt, nil
}

// PNG renders the sealed receipt as a QR code image.
func (g *Generator) PNG(receipt Receipt) ([]byte, error) {
	sealed, err := g.Seal(receipt)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, g.Size)
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
