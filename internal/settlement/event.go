// Package settlement applies provider notifications to the ledger: inbound
// credits, outbound transfer outcomes and statement reconciliation.
package settlement

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
)

type Kind string

const (
	KindSuccessfulTransaction  Kind = "SUCCESSFUL_TRANSACTION"
	KindSuccessfulCollection   Kind = "SUCCESSFUL_COLLECTION"
	KindSuccessfulDisbursement Kind = "SUCCESSFUL_DISBURSEMENT"
	KindFailedDisbursement     Kind = "FAILED_DISBURSEMENT"
	KindReversedDisbursement   Kind = "REVERSED_DISBURSEMENT"
	KindTransferStatusUpdate   Kind = "TRANSFER_STATUS_UPDATE"
	KindUnknown                Kind = "UNKNOWN"

	// kindStatement marks credits discovered by statement sync.
	kindStatement Kind = "STATEMENT_SYNC"
)

func (k Kind) Inbound() bool {
	return k == KindSuccessfulTransaction || k == KindSuccessfulCollection || k == kindStatement
}

func (k Kind) Outbound() bool {
	switch k {
	case KindSuccessfulDisbursement, KindFailedDisbursement, KindReversedDisbursement, KindTransferStatusUpdate:
		return true
	}
	return false
}

var ErrMalformedEvent = apperror.New(apperror.KindValidation, "Malformed webhook payload")

func malformed(msg string) error {
	return apperror.Wrap(apperror.KindValidation, msg, ErrMalformedEvent)
}

// Event is a provider notification reduced to the fields we act on.
type Event struct {
	Kind             Kind
	Reference        string
	Amount           decimal.Decimal
	SettlementAmount *decimal.Decimal
	Fee              *decimal.Decimal
	Status           string
	StatusMessage    string
	AccountNumber    string
	Narration        string
	TransactionDate  string
	Raw              []byte
}

type payload struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

type eventData struct {
	TransactionReference     string           `json:"transactionReference"`
	PaymentReference         string           `json:"paymentReference"`
	Reference                string           `json:"reference"`
	AmountPaid               *decimal.Decimal `json:"amountPaid"`
	Amount                   *decimal.Decimal `json:"amount"`
	SettlementAmount         *decimal.Decimal `json:"settlementAmount"`
	Fee                      *decimal.Decimal `json:"fee"`
	Status                   string           `json:"status"`
	StatusMessage            string           `json:"statusMessage"`
	DestinationAccountNumber string           `json:"destinationAccountNumber"`
	AccountNumber            string           `json:"accountNumber"`
	DestinationAccount       *struct {
		AccountNumber string `json:"accountNumber"`
	} `json:"destinationAccountInformation"`
	Narration          string `json:"narration"`
	PaymentDescription string `json:"paymentDescription"`
	TransactionDate    string `json:"transactionDate"`
	PaidOn             string `json:"paidOn"`
}

// ParseEvent decodes a webhook body. A non-empty fixed kind comes from a
// dedicated route and overrides the body's eventType.
func ParseEvent(raw []byte, fixed Kind) (*Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformedEvent
	}

	body := p.EventData
	if len(body) == 0 || string(body) == "null" {
		body = raw
	}
	var d eventData
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, ErrMalformedEvent
	}

	ev := &Event{
		Kind:             Kind(strings.ToUpper(strings.TrimSpace(p.EventType))),
		SettlementAmount: d.SettlementAmount,
		Fee:              d.Fee,
		Status:           d.Status,
		StatusMessage:    d.StatusMessage,
		Narration:        first(d.Narration, d.PaymentDescription),
		TransactionDate:  first(d.TransactionDate, d.PaidOn),
		Raw:              raw,
	}
	if fixed != "" {
		ev.Kind = fixed
	}
	if ev.Kind == "" {
		ev.Kind = KindUnknown
	}

	switch {
	case d.AmountPaid != nil:
		ev.Amount = *d.AmountPaid
	case d.Amount != nil:
		ev.Amount = *d.Amount
	}

	if ev.Kind.Outbound() {
		ev.Reference = first(d.Reference, d.TransactionReference)
	} else {
		ev.Reference = first(d.TransactionReference, d.PaymentReference, d.Reference)
	}
	ev.AccountNumber = first(d.DestinationAccountNumber, d.AccountNumber)
	if ev.AccountNumber == "" && d.DestinationAccount != nil {
		ev.AccountNumber = d.DestinationAccount.AccountNumber
	}

	if !ev.Kind.Inbound() && !ev.Kind.Outbound() {
		return ev, nil
	}
	if ev.Reference == "" {
		return nil, malformed("Webhook reference is missing")
	}
	if ev.Kind.Inbound() && ev.AccountNumber == "" {
		return nil, malformed("Webhook destination account is missing")
	}
	return ev, nil
}

// FeeAndNet splits the gross amount of an inbound payment. The explicit fee
// wins; otherwise the gap between gross and settled amounts is the fee.
func (e *Event) FeeAndNet() (fee, net decimal.Decimal) {
	switch {
	case e.Fee != nil:
		fee = e.Fee.Abs()
	case e.SettlementAmount != nil && !e.Amount.IsZero():
		fee = e.Amount.Sub(*e.SettlementAmount).Abs()
	default:
		fee = decimal.Zero
	}
	return fee, e.Amount.Sub(fee)
}

// TransferStatus maps a provider transfer status onto ours. Disbursement
// kinds imply their status when the body carries none.
func (e *Event) TransferStatus() wallet.TransactionStatus {
	status := e.Status
	if status == "" {
		switch e.Kind {
		case KindSuccessfulDisbursement:
			status = "success"
		case KindFailedDisbursement:
			status = "failed"
		case KindReversedDisbursement:
			status = "reversed"
		}
	}
	return NormalizeStatus(status)
}

func NormalizeStatus(status string) wallet.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "success":
		return wallet.TransactionSuccessful
	case "failed", "failure", "reversed":
		return wallet.TransactionFailed
	default:
		return wallet.TransactionProcessing
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
