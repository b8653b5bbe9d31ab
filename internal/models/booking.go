package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID     string `bun:"id,pk" json:"seatId"`
	Row    string `bun:"row,notnull" json:"row"`
	Number int    `bun:"number,notnull" json:"number"`
}

const BookingStatusBooked = "booked"

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID           string    `bun:"id,pk" json:"id"`
	SeatID       string    `bun:"seat_id,notnull" json:"seatId"`
	SessionLevel string    `bun:"session_level,notnull" json:"sessionLevel"`
	CustomerName string    `bun:"customer_name,notnull" json:"customerName"`
	MobileNumber string    `bun:"mobile_number,notnull" json:"mobileNumber"`
	Email        string    `bun:"email,notnull" json:"email"`
	CodeUsed     string    `bun:"code_used,notnull" json:"codeUsed"`
	Status       string    `bun:"status,notnull" json:"status"`
	QRCode       []byte    `bun:"qr_code" json:"-"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
}
