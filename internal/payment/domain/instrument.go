package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Method string

const (
	MethodUPI  Method = "upi"
	MethodCard Method = "card"
)

// Instrument is the method-specific part of a payment: either UPI or Card.
type Instrument interface {
	Method() Method
	instrument()
}

type UPI struct {
	VPA string
}

func (UPI) Method() Method { return MethodUPI }
func (UPI) instrument()    {}

// Card keeps only what may be persisted. Number and CVV never leave CardInput.
type Card struct {
	Network string
	Last4   string
}

func (Card) Method() Method { return MethodCard }
func (Card) instrument()    {}

var vpaPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)

func ValidVPA(vpa string) bool {
	return vpa != "" && vpaPattern.MatchString(vpa)
}

func NewUPI(vpa string) (UPI, error) {
	if !ValidVPA(vpa) {
		return UPI{}, apperr.Validation(apperr.CodeInvalidVPA, "Invalid VPA format")
	}
	return UPI{VPA: vpa}, nil
}

type CardInput struct {
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
	HolderName  string
}

// Tokenize validates the card and reduces it to network and last four digits.
func (c CardInput) Tokenize(now time.Time) (Card, error) {
	if c.Number == "" || c.ExpiryMonth == "" || c.ExpiryYear == "" || c.CVV == "" || c.HolderName == "" {
		return Card{}, apperr.BadRequest("Card details incomplete")
	}
	digits := Digits(c.Number)
	if !Luhn(digits) {
		return Card{}, apperr.Validation(apperr.CodeInvalidCard, "Card validation failed")
	}
	if !ValidExpiry(c.ExpiryMonth, c.ExpiryYear, now) {
		return Card{}, apperr.Validation(apperr.CodeExpiredCard, "Card expiry date invalid")
	}
	return Card{Network: Network(digits), Last4: digits[len(digits)-4:]}, nil
}

// Digits strips everything but 0-9.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Luhn checks the mod-10 checksum of a 13 to 19 digit number.
func Luhn(number string) bool {
	digits := Digits(number)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func Network(number string) string {
	digits := Digits(number)
	if strings.HasPrefix(digits, "4") {
		return "visa"
	}
	if len(digits) < 2 {
		return "unknown"
	}
	two, _ := strconv.Atoi(digits[:2])
	switch {
	case two >= 51 && two <= 55:
		return "mastercard"
	case two == 34 || two == 37:
		return "amex"
	case two == 60 || two == 65 || (two >= 81 && two <= 89):
		return "rupay"
	default:
		return "unknown"
	}
}

// ValidExpiry accepts a card expiring in the current month or later. Two
// digit years are taken as 20xx.
func ValidExpiry(month, year string, now time.Time) bool {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return false
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y <= 0 {
		return false
	}
	if y < 100 {
		y += 2000
	}
	curYear, curMonth := now.Year(), int(now.Month())
	return y > curYear || (y == curYear && m >= curMonth)
}
