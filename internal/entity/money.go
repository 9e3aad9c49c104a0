package domain

import "fmt"

// Money is an integer amount of minor units (centavos). Arithmetic and
// comparison stay exact; reconciliation demands equality, no tolerance.
type Money struct {
	Cents    int64
	Currency string
}

func BRL(cents int64) Money { return Money{Cents: cents, Currency: "BRL"} }

func (m Money) Equal(o Money) bool {
	return m.Cents == o.Cents && m.Currency == o.Currency
}

func (m Money) IsZero() bool { return m.Cents == 0 }

// Decimal renders "50.00" style strings for provider wire formats that take
// decimal amounts.
func (m Money) Decimal() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Currency == "" {
		return ErrInvalidAmount
	}
	return nil
}
