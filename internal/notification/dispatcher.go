package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/pkg/events"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Type string

const (
	TypeOTP              Type = "otp"
	TypeWelcome          Type = "welcome"
	TypeTransactionAlert Type = "transaction_alert"
	TypeTransferReversed Type = "transfer_reversed"
)

const appName = "HIJAZ"

// Notification is the message body carried on the queue.
type Notification struct {
	Type      Type                   `json:"type"`
	Phone     string                 `json:"phone"`
	Message   string                 `json:"message"`
	Reference string                 `json:"reference,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func (n Notification) routingKey() string {
	return "notification." + string(n.Type)
}

type AlertType string

const (
	AlertCredit AlertType = "credit"
	AlertDebit  AlertType = "debit"
)

type Alert struct {
	Type        AlertType
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	Reference   string
	Destination string
}

// Dispatcher renders customer messages and queues them. Every method is
// best-effort: failures are logged and never reach the caller.
type Dispatcher struct {
	publisher events.Publisher
	now       func() time.Time
}

func NewDispatcher(publisher events.Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher, now: time.Now}
}

func (d *Dispatcher) OTP(ctx context.Context, to, code string) {
	d.publish(ctx, Notification{
		Type:    TypeOTP,
		Phone:   to,
		Message: fmt.Sprintf("Your %s OTP is: %s. Valid for 5 minutes. Do not share this code.", appName, code),
	})
}

func (d *Dispatcher) Welcome(ctx context.Context, to, name, accountNumber string) {
	d.publish(ctx, Notification{
		Type:     TypeWelcome,
		Phone:    to,
		Message:  fmt.Sprintf("Welcome to %s Banking, %s! Your account %s is now active. Start banking with us today!", appName, name, accountNumber),
		Metadata: map[string]interface{}{"account_number": utils.MaskAccountNumber(accountNumber)},
	})
}

func (d *Dispatcher) TransactionAlert(ctx context.Context, to string, a Alert) {
	verb := "Credited"
	if a.Type == AlertDebit {
		verb = "Debited"
	}
	msg := fmt.Sprintf("%s Alert: Your account has been %s with %s. Balance: %s. Ref: %s",
		appName, verb, money.FormatNaira(a.Amount), money.FormatNaira(a.Balance), a.Reference)
	if a.Destination != "" {
		msg += ". To: " + a.Destination
	}

	d.publish(ctx, Notification{
		Type:      TypeTransactionAlert,
		Phone:     to,
		Message:   msg,
		Reference: a.Reference,
		Metadata:  map[string]interface{}{"direction": string(a.Type), "amount": a.Amount.StringFixed(2)},
	})
}

func (d *Dispatcher) TransferReversed(ctx context.Context, to string, amount, balance decimal.Decimal, reference string) {
	d.publish(ctx, Notification{
		Type:  TypeTransferReversed,
		Phone: to,
		Message: fmt.Sprintf("%s Alert: Your transfer %s failed and %s has been returned to your account. Balance: %s",
			appName, reference, money.FormatNaira(amount), money.FormatNaira(balance)),
		Reference: reference,
	})
}

func (d *Dispatcher) publish(ctx context.Context, n Notification) {
	if n.Phone == "" {
		return
	}
	n.CreatedAt = d.now().UTC()

	if err := d.publisher.Publish(ctx, n.routingKey(), n); err != nil {
		logger.Error("Failed to queue notification", logger.Merge(logger.WithError(err), logger.Fields{
			"type":          string(n.Type),
			logger.PhoneKey: phone.Mask(n.Phone),
		}))
	}
}
