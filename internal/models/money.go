package models

import "github.com/shopspring/decimal"

// Денежные колонки хранятся как NUMERIC(12,2): не больше двух знаков после запятой
// и десяти до неё.
const MoneyScale = 2

var moneyLimit = decimal.New(1, 10)

// ValidMoney сообщает, поместится ли положительная сумма в денежную колонку без округления.
func ValidMoney(d decimal.Decimal) bool {
	if !d.IsPositive() || d.GreaterThanOrEqual(moneyLimit) {
		return false
	}
	return d.Equal(d.Truncate(MoneyScale))
}
