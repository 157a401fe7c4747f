package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		fixed     Kind
		kind      Kind
		reference string
		account   string
		amount    string
	}{
		{
			name:      "wrapped transaction",
			body:      `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|1","paymentReference":"P1","amountPaid":"5000.00","destinationAccountNumber":"5000000001"}}`,
			kind:      KindSuccessfulTransaction,
			reference: "MNFY|1",
			account:   "5000000001",
			amount:    "5000",
		},
		{
			name:      "collection on fixed route",
			body:      `{"paymentReference":"P2","amountPaid":1000,"settlementAmount":990,"accountNumber":"5000000002"}`,
			fixed:     KindSuccessfulCollection,
			kind:      KindSuccessfulCollection,
			reference: "P2",
			account:   "5000000002",
			amount:    "1000",
		},
		{
			name:      "nested destination account",
			body:      `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"T3","amount":200,"destinationAccountInformation":{"accountNumber":"5000000003"}}}`,
			kind:      KindSuccessfulTransaction,
			reference: "T3",
			account:   "5000000003",
			amount:    "200",
		},
		{
			name:      "transfer uses reference first",
			body:      `{"eventType":"TRANSFER_STATUS_UPDATE","eventData":{"reference":"HJZ1","transactionReference":"MFDS1","status":"SUCCESS"}}`,
			kind:      KindTransferStatusUpdate,
			reference: "HJZ1",
			amount:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body), tt.fixed)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.reference, ev.Reference)
			assert.Equal(t, tt.account, ev.AccountNumber)
			assert.True(t, ev.Amount.Equal(decimal.RequireFromString(tt.amount)), ev.Amount.String())
		})
	}
}

func TestParseEventMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":           `{{`,
		"no reference":       `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"amountPaid":10,"destinationAccountNumber":"1"}}`,
		"inbound no account": `{"eventType":"SUCCESSFUL_COLLECTION","eventData":{"paymentReference":"P","amountPaid":10}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent([]byte(body), "")
			assert.True(t, errors.Is(err, ErrMalformedEvent), err)
		})
	}
}

func TestParseEventMissingKindIsUnknown(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"eventData":{"transactionReference":"NOKIND1","amountPaid":100}}`), "")
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, ev.Kind)
	assert.Equal(t, "NOKIND1", ev.Reference)
}

func TestParseEventUnknownKindNeedsNoReference(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"eventType":"MANDATE_UPDATE","eventData":{}}`), "")
	require.NoError(t, err)
	assert.False(t, ev.Kind.Inbound())
	assert.False(t, ev.Kind.Outbound())
}

func TestFeeAndNet(t *testing.T) {
	d := decimal.RequireFromString
	fee50 := d("50")
	settled := d("4925")

	tests := []struct {
		name     string
		ev       Event
		fee, net string
	}{
		{"explicit fee", Event{Amount: d("5000"), Fee: &fee50}, "50", "4950"},
		{"settlement gap", Event{Amount: d("5000"), SettlementAmount: &settled}, "75", "4925"},
		{"explicit fee wins", Event{Amount: d("5000"), Fee: &fee50, SettlementAmount: &settled}, "50", "4950"},
		{"no fee data", Event{Amount: d("5000")}, "0", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net := tt.ev.FeeAndNet()
			assert.True(t, fee.Equal(d(tt.fee)), fee.String())
			assert.True(t, net.Equal(d(tt.net)), net.String())
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, wallet.TransactionSuccessful, NormalizeStatus("SUCCESS"))
	assert.Equal(t, wallet.TransactionSuccessful, NormalizeStatus("successful"))
	assert.Equal(t, wallet.TransactionFailed, NormalizeStatus("FAILED"))
	assert.Equal(t, wallet.TransactionFailed, NormalizeStatus("failure"))
	assert.Equal(t, wallet.TransactionFailed, NormalizeStatus("REVERSED"))
	assert.Equal(t, wallet.TransactionProcessing, NormalizeStatus("PENDING_AUTHORIZATION"))
	assert.Equal(t, wallet.TransactionProcessing, NormalizeStatus(""))

	ev := Event{Kind: KindReversedDisbursement}
	assert.Equal(t, wallet.TransactionFailed, ev.TransferStatus())
	ev = Event{Kind: KindSuccessfulDisbursement}
	assert.Equal(t, wallet.TransactionSuccessful, ev.TransferStatus())
}
