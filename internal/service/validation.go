package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	namePattern  = regexp.MustCompile(`^[\p{L} ]+$`)
	phonePattern = regexp.MustCompile(`^[0-9+\-\s()]+$`)

	maxBottlePrice   = decimal.RequireFromString("999.99")
	maxPaymentAmount = decimal.RequireFromString("99999999.99")
)

func validatePersonName(field, value string, required bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
		}
		return nil
	}
	length := utf8.RuneCountInString(value)
	if length < 2 || length > 50 {
		return fmt.Errorf("%w: %s must be between 2 and 50 characters", ErrInvalidInput, field)
	}
	if !namePattern.MatchString(value) {
		return fmt.Errorf("%w: %s may only contain letters and spaces", ErrInvalidInput, field)
	}
	return nil
}

func validateAddress(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	length := utf8.RuneCountInString(value)
	if length < 10 || length > 200 {
		return fmt.Errorf("%w: address must be between 10 and 200 characters", ErrInvalidInput)
	}
	return nil
}

// validatePhone accepts an empty value; otherwise 7 to 11 digits with common separators.
func validatePhone(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if len(value) > 13 {
		return fmt.Errorf("%w: phone must be at most 13 characters", ErrInvalidInput)
	}
	if !phonePattern.MatchString(value) {
		return fmt.Errorf("%w: phone contains invalid characters", ErrInvalidInput)
	}
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 7 || digits > 11 {
		return fmt.Errorf("%w: phone must contain between 7 and 11 digits", ErrInvalidInput)
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: bottle price must not be negative", ErrInvalidInput)
	}
	if price.GreaterThan(maxBottlePrice) {
		return fmt.Errorf("%w: bottle price must not exceed %s", ErrInvalidInput, maxBottlePrice.StringFixed(2))
	}
	if !price.Round(2).Equal(price) {
		return fmt.Errorf("%w: bottle price allows at most 2 decimals", ErrInvalidInput)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	if amount.GreaterThan(maxPaymentAmount) {
		return fmt.Errorf("%w: amount is too large", ErrInvalidInput)
	}
	if !amount.Round(2).Equal(amount) {
		return fmt.Errorf("%w: amount allows at most 2 decimals", ErrInvalidInput)
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	return nil
}
