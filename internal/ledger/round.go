package ledger

import "github.com/shopspring/decimal"

const (
	quantityPlaces = 4
	moneyPlaces    = 2
)

// RoundQuantity rounds a stock quantity to 4 decimal places, half away from zero.
func RoundQuantity(v float64) float64 {
	return round(v, quantityPlaces)
}

// RoundMoney rounds a monetary amount to 2 decimal places, half away from zero.
func RoundMoney(v float64) float64 {
	return round(v, moneyPlaces)
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
