// Package wallettest provides an in-memory wallet.Store for tests.
package wallettest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
)

type state struct {
	txMu sync.Mutex
	mu   sync.Mutex

	now      func() time.Time
	wallets  map[uuid.UUID]wallet.Wallet
	accounts map[uuid.UUID]account.Account
	txns     []wallet.Transaction
	audits   []wallet.BalanceAudit
	failures map[string]error
}

// Store serialises every WithinTx call, which stands in for the row locks
// Postgres would take. A failed transaction rolls the whole state back.
type Store struct {
	st   *state
	inTx bool
}

func New() *Store {
	return &Store{st: &state{
		now:      time.Now,
		wallets:  map[uuid.UUID]wallet.Wallet{},
		accounts: map[uuid.UUID]account.Account{},
		failures: map[string]error{},
	}}
}

func (s *Store) SetClock(now func() time.Time) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.now = now
}

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.failures[op] = err
}

// SetAccountStatus changes the status the store reports for an account.
func (s *Store) SetAccountStatus(id uuid.UUID, status account.Status) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	acc := s.st.accounts[id]
	acc.Status = status
	s.st.accounts[id] = acc
}

func (s *Store) Transactions() []wallet.Transaction {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]wallet.Transaction(nil), s.st.txns...)
}

func (s *Store) Audits() []wallet.BalanceAudit {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]wallet.BalanceAudit(nil), s.st.audits...)
}

func (s *Store) fail(op string) error {
	if err, ok := s.st.failures[op]; ok {
		delete(s.st.failures, op)
		return err
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx wallet.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()

	s.st.mu.Lock()
	wallets := make(map[uuid.UUID]wallet.Wallet, len(s.st.wallets))
	for k, v := range s.st.wallets {
		wallets[k] = v
	}
	accounts := make(map[uuid.UUID]account.Account, len(s.st.accounts))
	for k, v := range s.st.accounts {
		accounts[k] = v
	}
	txns := append([]wallet.Transaction(nil), s.st.txns...)
	audits := append([]wallet.BalanceAudit(nil), s.st.audits...)
	s.st.mu.Unlock()

	if err := fn(&Store{st: s.st, inTx: true}); err != nil {
		s.st.mu.Lock()
		s.st.wallets, s.st.accounts, s.st.txns, s.st.audits = wallets, accounts, txns, audits
		s.st.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CreateWallet(ctx context.Context, w *wallet.Wallet) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fail("CreateWallet"); err != nil {
		return err
	}
	for _, existing := range s.st.wallets {
		if existing.AccountNumber == w.AccountNumber || existing.AccountID == w.AccountID {
			return apperror.Conflict("Wallet already exists")
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := s.st.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.put(w)
	return nil
}

func (s *Store) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fail("SaveWallet"); err != nil {
		return err
	}
	w.UpdatedAt = s.st.now()
	s.put(w)
	return nil
}

func (s *Store) put(w *wallet.Wallet) {
	cp := *w
	if w.Account != nil {
		s.st.accounts[w.AccountID] = *w.Account
	}
	cp.Account = nil
	s.st.wallets[w.ID] = cp
}

func (s *Store) load(match func(wallet.Wallet) bool) (*wallet.Wallet, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, w := range s.st.wallets {
		if match(w) {
			cp := w
			if acc, ok := s.st.accounts[w.AccountID]; ok {
				cp.Account = &acc
			}
			return &cp, nil
		}
	}
	return nil, wallet.ErrWalletNotFound
}

func (s *Store) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return s.load(func(w wallet.Wallet) bool { return w.ID == id })
}

func (s *Store) GetWalletByAccountID(ctx context.Context, accountID uuid.UUID) (*wallet.Wallet, error) {
	return s.load(func(w wallet.Wallet) bool { return w.AccountID == accountID })
}

func (s *Store) LockWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return s.GetWallet(ctx, id)
}

func (s *Store) LockWalletByAccountNumber(ctx context.Context, accountNumber string) (*wallet.Wallet, error) {
	return s.load(func(w wallet.Wallet) bool { return w.AccountNumber == accountNumber })
}

func (s *Store) CreateTransaction(ctx context.Context, t *wallet.Transaction) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fail("CreateTransaction"); err != nil {
		return err
	}
	for _, existing := range s.st.txns {
		if existing.Reference == t.Reference {
			return wallet.ErrDuplicateReference
		}
		if t.ExternalReference != nil && existing.ExternalReference != nil && *existing.ExternalReference == *t.ExternalReference {
			return wallet.ErrDuplicateReference
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.st.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.st.txns = append(s.st.txns, *t)
	return nil
}

func (s *Store) SaveTransaction(ctx context.Context, t *wallet.Transaction) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.fail("SaveTransaction"); err != nil {
		return err
	}
	for i := range s.st.txns {
		if s.st.txns[i].ID == t.ID {
			t.UpdatedAt = s.st.now()
			s.st.txns[i] = *t
			return nil
		}
	}
	return wallet.ErrTransactionNotFound
}

func (s *Store) GetTransaction(ctx context.Context, walletID, id uuid.UUID) (*wallet.Transaction, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, t := range s.st.txns {
		if t.ID == id && t.WalletID == walletID {
			cp := t
			return &cp, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (*wallet.Transaction, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, t := range s.st.txns {
		if t.Reference == reference || (t.ExternalReference != nil && *t.ExternalReference == reference) {
			cp := t
			return &cp, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (s *Store) LockTransactionByReference(ctx context.Context, reference string) (*wallet.Transaction, error) {
	return s.GetTransactionByReference(ctx, reference)
}

func (s *Store) ListChildTransactions(ctx context.Context, parentReference string) ([]wallet.Transaction, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var out []wallet.Transaction
	for _, t := range s.st.txns {
		if t.ParentReference != nil && *t.ParentReference == parentReference {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, walletID uuid.UUID, f wallet.TransactionFilter) ([]wallet.Transaction, int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var matched []wallet.Transaction
	for i := len(s.st.txns) - 1; i >= 0; i-- {
		t := s.st.txns[i]
		switch {
		case t.WalletID != walletID,
			f.Direction != "" && t.Direction != f.Direction,
			f.Category != "" && t.Category != f.Category,
			f.Status != "" && t.Status != f.Status,
			f.From != nil && t.CreatedAt.Before(*f.From),
			f.To != nil && !t.CreatedAt.Before(*f.To):
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if f.Limit > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		end := f.Offset + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[f.Offset:end]
	}
	return matched, total, nil
}

func (s *Store) ListStaleTransfers(ctx context.Context, before time.Time, limit int) ([]wallet.Transaction, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var out []wallet.Transaction
	for _, t := range s.st.txns {
		if t.Direction != wallet.Debit || t.Category != wallet.CategoryTransfer || t.IsTerminal() || !t.CreatedAt.Before(before) {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) TransactionSummary(ctx context.Context, walletID uuid.UUID) (*wallet.Summary, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sum := &wallet.Summary{TotalCredits: decimal.Zero, TotalDebits: decimal.Zero}
	for _, t := range s.st.txns {
		if t.WalletID != walletID {
			continue
		}
		sum.Count++
		switch {
		case t.Status == wallet.TransactionPending || t.Status == wallet.TransactionProcessing:
			sum.Pending++
		case t.Status == wallet.TransactionSuccessful && t.Direction == wallet.Credit:
			sum.TotalCredits = sum.TotalCredits.Add(t.Amount)
		case t.Status == wallet.TransactionSuccessful && t.Direction == wallet.Debit:
			sum.TotalDebits = sum.TotalDebits.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) LedgerTotals(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	credits, debits := decimal.Zero, decimal.Zero
	for _, t := range s.st.txns {
		if t.WalletID != walletID || !t.BalanceApplied {
			continue
		}
		if t.Direction == wallet.Credit {
			credits = credits.Add(t.Amount)
		} else {
			debits = debits.Add(t.Amount)
		}
	}
	return credits, debits, nil
}

func (s *Store) BalanceAt(ctx context.Context, walletID uuid.UUID, t time.Time) (decimal.Decimal, bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for i := len(s.st.txns) - 1; i >= 0; i-- {
		txn := s.st.txns[i]
		if txn.WalletID == walletID && txn.BalanceApplied && txn.CreatedAt.Before(t) {
			return txn.BalanceAfter, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (s *Store) CreateBalanceAudit(ctx context.Context, a *wallet.BalanceAudit) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = s.st.now()
	s.st.audits = append(s.st.audits, *a)
	return nil
}

// Seed stores a ready wallet for acc with the given balance and returns it.
func (s *Store) Seed(acc *account.Account, balance decimal.Decimal) *wallet.Wallet {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.Status == "" {
		acc.Status = account.StatusActive
	}
	if acc.KYCLevel == "" {
		acc.KYCLevel = account.Tier1
	}
	w := &wallet.Wallet{
		ID:               uuid.New(),
		AccountID:        acc.ID,
		ExternalWalletID: "MW-" + acc.ID.String()[:8],
		WalletReference:  "WLT-" + acc.PhoneNumber,
		AccountNumber:    accountNumber(acc.ID),
		AccountName:      acc.FullName(),
		BankName:         "Moniepoint Microfinance Bank",
		BankCode:         "50515",
		AvailableBalance: balance,
		LedgerBalance:    balance,
		Status:           wallet.StatusActive,
		IsDefault:        true,
		Account:          acc,
	}
	wallet.ApplyTier(w, acc.KYCLevel)

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	now := s.st.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.put(w)
	return w
}

func accountNumber(id uuid.UUID) string {
	digits := make([]byte, 10)
	for i := range digits {
		digits[i] = '0' + id[i]%10
	}
	return string(digits)
}

// References returns a generator of predictable, collision-free references
// for wallet.WithReferences.
func References() func(time.Time) string {
	var n atomic.Int64
	return func(now time.Time) string {
		return fmt.Sprintf("HJZ%s%06d", now.Format("20060102"), n.Add(1))
	}
}

var _ wallet.Store = (*Store)(nil)
