package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

type Wallet struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	AccountID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex" json:"account_id"`
	ExternalWalletID string           `gorm:"uniqueIndex;not null" json:"-"`
	WalletReference  string           `gorm:"uniqueIndex;not null" json:"-"`
	AccountNumber    string           `gorm:"uniqueIndex;not null" json:"account_number"`
	AccountName      string           `gorm:"not null" json:"account_name"`
	BankName         string           `gorm:"not null" json:"bank_name"`
	BankCode         string           `gorm:"not null" json:"bank_code"`
	AvailableBalance decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"available_balance"`
	LedgerBalance    decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"ledger_balance"`
	DailyLimit       decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"daily_limit"`
	MonthlyLimit     decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"monthly_limit"`
	DailySpent       decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"daily_spent"`
	MonthlySpent     decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0" json:"monthly_spent"`
	LastDailyReset   time.Time        `gorm:"type:date" json:"last_daily_reset"`
	LastMonthlyReset time.Time        `gorm:"type:date" json:"last_monthly_reset"`
	Status           Status           `gorm:"not null;default:active" json:"status"`
	IsDefault        bool             `gorm:"not null;default:true" json:"is_default"`
	ProviderResponse datatypes.JSON   `json:"-"`
	WalletCreatedAt  *time.Time       `json:"wallet_created_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Account          *account.Account `gorm:"foreignKey:AccountID" json:"-"`
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type Category string

const (
	CategoryDeposit    Category = "deposit"
	CategoryWithdrawal Category = "withdrawal"
	CategoryTransfer   Category = "transfer"
	CategoryFee        Category = "fee"
	CategoryReversal   Category = "reversal"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
	TransactionReversed   TransactionStatus = "reversed"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccessful || s == TransactionFailed || s == TransactionReversed
}

// CanTransitionTo enforces pending -> processing -> successful|failed. Terminal
// states never move.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return next == TransactionProcessing || next == TransactionSuccessful || next == TransactionFailed
	case TransactionProcessing:
		return next == TransactionProcessing || next == TransactionSuccessful || next == TransactionFailed
	}
	return false
}

const (
	ChannelApp        = "app"
	ChannelAPI        = "api"
	ChannelWebhook    = "webhook"
	ChannelCollection = "collection"
	ChannelSync       = "sync"
	ChannelSystem     = "system"
)

type Transaction struct {
	ID                     uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	AccountID              uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
	WalletID               uuid.UUID         `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Reference              string            `gorm:"uniqueIndex;not null" json:"reference"`
	ExternalReference      *string           `gorm:"uniqueIndex" json:"external_reference,omitempty"`
	ParentReference        *string           `gorm:"index" json:"parent_reference,omitempty"`
	Direction              Direction         `gorm:"not null" json:"direction"`
	Category               Category          `gorm:"not null" json:"category"`
	Amount                 decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"amount"`
	Fee                    decimal.Decimal   `gorm:"type:numeric(15,2);not null;default:0" json:"fee"`
	BalanceBefore          decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"balance_before"`
	BalanceAfter           decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"balance_after"`
	Status                 TransactionStatus `gorm:"not null;index" json:"status"`
	StatusMessage          string            `json:"status_message,omitempty"`
	BalanceApplied         bool              `gorm:"not null;default:false" json:"-"`
	DestinationAccount     string            `json:"destination_account,omitempty"`
	DestinationBank        string            `json:"destination_bank,omitempty"`
	DestinationBankCode    string            `json:"destination_bank_code,omitempty"`
	DestinationAccountName string            `json:"destination_account_name,omitempty"`
	Narration              string            `json:"narration"`
	Channel                string            `gorm:"not null" json:"channel"`
	Metadata               datatypes.JSON    `json:"metadata,omitempty"`
	ProviderResponse       datatypes.JSON    `json:"-"`
	ProcessedAt            *time.Time        `json:"processed_at,omitempty"`
	CreatedAt              time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// signed returns the row's effect on the balance.
func (t *Transaction) signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BalanceAudit records every comparison between the provider's figure and
// the local ledger.
type BalanceAudit struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	WalletID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Source            string          `gorm:"not null" json:"source"`
	ProviderBalance   decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"provider_balance"`
	PreviousAvailable decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"previous_available"`
	PreviousLedger    decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"previous_ledger"`
	ComputedLedger    decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"computed_ledger"`
	Applied           bool            `gorm:"not null" json:"applied"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Drift is how far the provider's figure is from the local balance.
func (a *BalanceAudit) Drift() decimal.Decimal {
	return a.ProviderBalance.Sub(a.PreviousAvailable)
}

type TransactionFilter struct {
	Direction Direction
	Category  Category
	Status    TransactionStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type Summary struct {
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	Count        int64           `json:"count"`
	Pending      int64           `json:"pending"`
}
