package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Aritmética monetária: tudo em decimal de precisão fixa, arredondado para 2
// casas depois de cada operação (half-up; Round do shopspring arredonda o .5
// para longe do zero, que para valores não negativos é a mesma coisa).

// LineTotal calcula o total de uma linha (preço unitário x quantidade)
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// Tax calcula o imposto sobre o subtotal
func Tax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(2)
}

// Total soma subtotal e imposto
func Total(subtotal, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax).Round(2)
}

// ParseTaxRate valida a taxa de imposto vinda da configuração
func ParseTaxRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", raw, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: must not be negative", raw)
	}
	return rate, nil
}
