package domain

import "errors"

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidCoupon      = errors.New("invalid or already used coupon")
	ErrTableNotFound      = errors.New("table not found")
	ErrPaymentMismatch    = errors.New("confirmed payment amount does not match settlement")
	ErrTicketNotFound     = errors.New("ticket not found")
)
