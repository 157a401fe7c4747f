package wallet

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
)

// Spending windows follow the local calendar.
var lagos = time.FixedZone("WAT", 60*60)

// civilDate is the calendar date of t in Lagos, stored as midnight UTC the
// way a Postgres date column comes back.
func civilDate(t time.Time) time.Time {
	y, m, d := t.In(lagos).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.In(lagos).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// sameDay compares a stored date column with a civil date.
func sameDay(stored, day time.Time) bool {
	y1, m1, d1 := stored.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// resetLimits zeroes the spend counters once their period has rolled over.
// It reports whether anything changed.
func resetLimits(w *Wallet, now time.Time) bool {
	changed := false

	today := civilDate(now)
	if w.LastDailyReset.IsZero() || w.LastDailyReset.Before(today) {
		w.DailySpent = decimal.Zero
		w.LastDailyReset = today
		changed = true
	}

	month := monthStart(now)
	if w.LastMonthlyReset.IsZero() || w.LastMonthlyReset.Before(month) {
		w.MonthlySpent = decimal.Zero
		w.LastMonthlyReset = month
		changed = true
	}
	return changed
}

// CanSpend reports whether amount fits the balance and both spend windows.
// w is taken by value so the lazy reset stays local.
func CanSpend(w Wallet, amount decimal.Decimal, now time.Time) bool {
	if !amount.IsPositive() {
		return false
	}
	resetLimits(&w, now)
	return checkSpend(&w, amount) == nil
}

// CheckSpend is CanSpend with the reason: the wallet must be transactable
// and amount must fit the balance and both windows.
func CheckSpend(w Wallet, amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := transactable(&w); err != nil {
		return err
	}
	resetLimits(&w, now)
	return checkSpend(&w, amount)
}

func checkSpend(w *Wallet, total decimal.Decimal) error {
	if total.GreaterThan(w.AvailableBalance) {
		return ErrInsufficientBalance
	}
	if w.DailySpent.Add(total).GreaterThan(w.DailyLimit) {
		return ErrDailyLimitExceeded
	}
	if w.MonthlySpent.Add(total).GreaterThan(w.MonthlyLimit) {
		return ErrMonthlyLimitExceeded
	}
	return nil
}

// restoreSpend gives back counters charged by a debit that was later
// reversed, if the debit still falls in the current window.
func restoreSpend(w *Wallet, debitedAt time.Time, total decimal.Decimal) {
	if sameDay(civilDate(debitedAt), w.LastDailyReset) {
		w.DailySpent = floorZero(w.DailySpent.Sub(total))
	}
	if sameDay(monthStart(debitedAt), w.LastMonthlyReset) {
		w.MonthlySpent = floorZero(w.MonthlySpent.Sub(total))
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ApplyTier sets the wallet's limits for an account tier.
func ApplyTier(w *Wallet, tier account.Tier) {
	l := tier.Limits()
	w.DailyLimit = l.Daily
	w.MonthlyLimit = l.Monthly
}
