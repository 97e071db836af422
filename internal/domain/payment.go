package domain

import (
	"errors"
	"time"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Payment struct {
	PaymentID string
	Amount    float64
	TS        time.Time
	CreatedAt time.Time
}
