package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes a raw message to the given topic.
func (p *Producer) Publish(topic, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

// PublishBookingCreated streams a booking creation event. The QR payload is
// stripped; downstream consumers only need the booking facts.
func (p *Producer) PublishBookingCreated(booking models.Booking) error {
	booking.QRCode = nil
	msgBytes, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return p.Publish(TopicBookingCreated, booking.ID, msgBytes)
}

type codeRedeemedEvent struct {
	Code     string `json:"code"`
	Bookings int    `json:"bookings"`
}

// PublishCodeRedeemed streams a usage event for a redeemed code.
func (p *Producer) PublishCodeRedeemed(code string, bookings int) error {
	msgBytes, err := json.Marshal(codeRedeemedEvent{Code: code, Bookings: bookings})
	if err != nil {
		return err
	}
	return p.Publish(TopicCodeRedeemed, code, msgBytes)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
