package transfer

import (
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
)

var (
	bandSmall  = decimal.NewFromInt(5000)
	bandMedium = decimal.NewFromInt(50000)

	feeSmall  = decimal.NewFromInt(10)
	feeMedium = decimal.NewFromInt(25)
	feeLarge  = decimal.NewFromInt(50)
)

// Fee is the flat charge for sending amount to another bank.
func Fee(amount decimal.Decimal) decimal.Decimal {
	switch {
	case amount.LessThanOrEqual(bandSmall):
		return feeSmall
	case amount.LessThanOrEqual(bandMedium):
		return feeMedium
	default:
		return feeLarge
	}
}

type Quote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

func quote(amount, minimum decimal.Decimal) (Quote, error) {
	amount = money.Round(amount)
	if amount.LessThan(minimum) {
		return Quote{}, apperror.Validation("Minimum transfer amount is " + money.FormatNaira(minimum))
	}
	fee := Fee(amount)
	return Quote{Amount: amount, Fee: fee, Total: amount.Add(fee)}, nil
}
