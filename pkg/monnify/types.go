package monnify

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// envelope wraps every Monnify response.
type envelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseCode      string          `json:"responseCode"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type loginBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// IdentityRecord is the customer record returned by BVN and NIN lookups.
type IdentityRecord struct {
	FirstName   string          `json:"firstName"`
	MiddleName  string          `json:"middleName"`
	LastName    string          `json:"lastName"`
	DateOfBirth string          `json:"dateOfBirth"`
	Gender      string          `json:"gender"`
	PhoneNumber string          `json:"mobileNo"`
	Raw         json.RawMessage `json:"-"`
}

type BVNDetails struct {
	BVN            string `json:"bvn"`
	BVNDateOfBirth string `json:"bvnDateOfBirth"`
}

type CreateWalletRequest struct {
	WalletReference     string      `json:"walletReference"`
	WalletName          string      `json:"walletName"`
	CustomerName        string      `json:"customerName"`
	BVNDetails          *BVNDetails `json:"bvnDetails,omitempty"`
	CustomerEmail       string      `json:"customerEmail"`
	CustomerPhoneNumber string      `json:"customerPhoneNumber"`
}

type Wallet struct {
	WalletID        string          `json:"walletId"`
	WalletReference string          `json:"walletReference"`
	WalletName      string          `json:"walletName"`
	AccountNumber   string          `json:"accountNumber"`
	AccountName     string          `json:"accountName"`
	BankName        string          `json:"bankName"`
	BankCode        string          `json:"bankCode"`
	CustomerID      string          `json:"customerId"`
	Raw             json.RawMessage `json:"-"`
}

type Balance struct {
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	LedgerBalance    decimal.Decimal `json:"ledgerBalance"`
}

type WalletTransaction struct {
	TransactionReference string          `json:"transactionReference"`
	TransactionType      string          `json:"transactionType"`
	Amount               decimal.Decimal `json:"amount"`
	BalanceBefore        decimal.Decimal `json:"balanceBefore"`
	BalanceAfter         decimal.Decimal `json:"balanceAfter"`
	Status               string          `json:"status"`
	Narration            string          `json:"narration"`
	TransactionDate      string          `json:"transactionDate"`
}

type TransactionPage struct {
	Content       []WalletTransaction `json:"content"`
	TotalElements int64               `json:"totalElements"`
	TotalPages    int                 `json:"totalPages"`
	Last          bool                `json:"last"`
}

type TransferRequest struct {
	Amount                   json.Number `json:"amount"`
	Reference                string      `json:"reference"`
	Narration                string      `json:"narration"`
	DestinationBankCode      string      `json:"destinationBankCode"`
	DestinationAccountNumber string      `json:"destinationAccountNumber"`
	Currency                 string      `json:"currency"`
	SourceAccountNumber      string      `json:"sourceAccountNumber"`
}

type Transfer struct {
	Amount                   decimal.Decimal `json:"amount"`
	Reference                string          `json:"reference"`
	Status                   string          `json:"status"`
	StatusMessage            string          `json:"statusMessage"`
	TotalFee                 decimal.Decimal `json:"totalFee"`
	DestinationAccountName   string          `json:"destinationAccountName"`
	DestinationAccountNumber string          `json:"destinationAccountNumber"`
	DestinationBankName      string          `json:"destinationBankName"`
	DestinationBankCode      string          `json:"destinationBankCode"`
	DateCreated              string          `json:"dateCreated"`
	Raw                      json.RawMessage `json:"-"`
}

type Bank struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	USSDTemplate string `json:"ussdTemplate,omitempty"`
}

type AccountValidation struct {
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankCode      string `json:"bankCode"`
}
