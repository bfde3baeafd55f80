package payment

import (
	"fmt"
	"time"

	"koikhabo/internal/domain"

	"github.com/go-playground/validator/v10"
)

const (
	MsgPhone       = "Please enter a valid Bangladesh phone number (01XXXXXXXXX)"
	MsgMethod      = "Please select a valid payment method"
	MsgCardNumber  = "Please enter a valid credit card number"
	MsgCardExpiry  = "Please enter a valid card expiry date (MM/YY)"
	MsgCardCVV     = "Please enter a valid CVV"
	MsgBkashPIN    = "Please enter a valid 4-digit bKash PIN"
	MsgNagadPIN    = "Please enter a valid 4-digit Nagad PIN"
	MsgEmptyCart   = "Your cart is empty"
	MsgPartySize   = "Party size must be between 1 and 8"
	MsgReservation = "Please choose a restaurant and time for your reservation"
)

type ValidationError = domain.ValidationError

func invalid(field, message string) *ValidationError {
	return domain.NewValidationError(field, message)
}

// Input is what the payment step collects.
type Input struct {
	Method     domain.PaymentMethod `json:"payment_method"`
	Phone      string               `json:"phone"`
	Email      string               `json:"email,omitempty"`
	Address    string               `json:"address,omitempty"`
	CardNumber string               `json:"card_number,omitempty"`
	CardExpiry string               `json:"card_expiry,omitempty"`
	CardCVV    string               `json:"card_cvv,omitempty"`
	BkashPIN   string               `json:"bkash_pin,omitempty"`
	NagadPIN   string               `json:"nagad_pin,omitempty"`
}

// Validator runs the payment checks in a fixed order and reports the first failure.
type Validator struct {
	v *validator.Validate
}

// Card expiry is checked in Validate against the caller's clock.
var customTags = map[string]func(string) bool{
	"bdphone":   ValidPhone,
	"luhn":      ValidCardNumber,
	"cvv":       ValidCVV,
	"walletpin": ValidPIN,
}

func NewValidator() *Validator {
	v := validator.New()
	for tag, check := range customTags {
		check := check
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})
		if err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return &Validator{v: v}
}

// Validate checks in against now. The order is phone, payment method, card
// details, then wallet PINs.
func (val *Validator) Validate(in Input, now time.Time) error {
	if err := val.v.Var(in.Phone, "bdphone"); err != nil {
		return invalid("phone", MsgPhone)
	}
	if err := val.v.Var(string(in.Method), "required,oneof=cash bkash nagad card"); err != nil {
		return invalid("payment_method", MsgMethod)
	}

	switch in.Method {
	case domain.PaymentCard:
		if err := val.v.Var(in.CardNumber, "luhn"); err != nil {
			return invalid("card_number", MsgCardNumber)
		}
		if !ValidExpiry(in.CardExpiry, now) {
			return invalid("card_expiry", MsgCardExpiry)
		}
		if err := val.v.Var(in.CardCVV, "cvv"); err != nil {
			return invalid("card_cvv", MsgCardCVV)
		}
	case domain.PaymentBkash:
		if err := val.v.Var(in.BkashPIN, "walletpin"); err != nil {
			return invalid("bkash_pin", MsgBkashPIN)
		}
	case domain.PaymentNagad:
		if err := val.v.Var(in.NagadPIN, "walletpin"); err != nil {
			return invalid("nagad_pin", MsgNagadPIN)
		}
	}
	return nil
}

// ValidatePartySize enforces the 1-8 guest range of a table reservation.
func (val *Validator) ValidatePartySize(size int) error {
	if err := val.v.Var(size, "min=1,max=8"); err != nil {
		return invalid("party_size", MsgPartySize)
	}
	return nil
}
