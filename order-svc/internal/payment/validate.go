package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	bdPhonePattern = regexp.MustCompile(`^01[3-9]\d{8}$`)
	cardPattern    = regexp.MustCompile(`^\d{13,19}$`)
	cvvPattern     = regexp.MustCompile(`^\d{3,4}$`)
	pinPattern     = regexp.MustCompile(`^\d{4}$`)
)

// ValidPhone accepts Bangladeshi mobile numbers in the 01XXXXXXXXX form.
func ValidPhone(phone string) bool {
	return bdPhonePattern.MatchString(phone)
}

// ValidCardNumber strips whitespace, requires 13-19 digits and a passing Luhn checksum.
func ValidCardNumber(number string) bool {
	num := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, number)
	if !cardPattern.MatchString(num) {
		return false
	}

	sum := 0
	double := false
	for i := len(num) - 1; i >= 0; i-- {
		digit := int(num[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// ValidExpiry checks an MM/YY expiry against now. The card stays valid
// through its expiry month.
func ValidExpiry(expiry string, now time.Time) bool {
	month, year, ok := strings.Cut(expiry, "/")
	if !ok || month == "" || year == "" {
		return false
	}
	expMonth, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil {
		return false
	}
	expYear, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return false
	}
	if expMonth < 1 || expMonth > 12 {
		return false
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	if expYear < currentYear || (expYear == currentYear && expMonth < currentMonth) {
		return false
	}
	return true
}

func ValidCVV(cvv string) bool {
	return cvvPattern.MatchString(cvv)
}

func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}
