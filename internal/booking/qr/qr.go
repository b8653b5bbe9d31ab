package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/models"
)

// Generator produces the QR entry pass attached to each booking. The
// payload is AES-encrypted so a pass cannot be forged from the visible
// booking details.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

type passPayload struct {
	BookingID    string    `json:"booking_id"`
	SeatID       string    `json:"seat_id"`
	SessionLevel string    `json:"session_level"`
	CustomerName string    `json:"customer_name"`
	IssuedAt     time.Time `json:"issued_at"`
}

func (g *Generator) GenerateEntryPass(booking models.Booking) ([]byte, error) {
	data, err := json.Marshal(passPayload{
		BookingID:    booking.ID,
		SeatID:       booking.SeatID,
		SessionLevel: booking.SessionLevel,
		CustomerName: booking.CustomerName,
		IssuedAt:     booking.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
