package banking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	xerrors "AIBank-Agent/internal/errors"
)

const isoDate = "2006-01-02"

var merchants = []string{
	"Tesco Superstore",
	"Transport for London",
	"Pret A Manger",
	"Octopus Energy",
	"Council Tax",
	"Spotify",
	"Amazon UK",
	"Boots",
	"M&S Food",
	"Costa Coffee",
}

// MockGateway serves a fixed demo customer. Dates are relative to the day
// the gateway was built. The dataset is read-only after construction.
type MockGateway struct {
	customer     Customer
	accounts     []Account
	transactions map[string][]Transaction
}

// NewMockGateway builds the demo dataset relative to today.
func NewMockGateway(today time.Time) *MockGateway {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	after := func(days int) string { return day.AddDate(0, 0, days).Format(isoDate) }

	accounts := []Account{
		{
			ID:             "acc_current_001",
			Type:           TypeCurrent,
			Name:           "Everyday Current Account",
			Balance:        "2450.67",
			Currency:       "GBP",
			AccountNumber:  "12345678",
			SortCode:       "12-34-56",
			OverdraftLimit: "500.00",
		},
		{
			ID:             "acc_savings_001",
			Type:           TypeSavings,
			Name:           "Rainy Day Saver",
			Balance:        "10420.15",
			Currency:       "GBP",
			AccountNumber:  "87654321",
			InterestRate:   "4.10",
			InterestEarned: "182.44",
		},
		{
			ID:               "acc_credit_001",
			Type:             TypeCredit,
			Name:             "AIBank Platinum Card",
			Balance:          "-734.28",
			Currency:         "GBP",
			CardNumberMasked: "**** **** **** 9021",
			CreditLimit:      "5000.00",
			AvailableCredit:  "4265.72",
			MinimumPayment:   "36.71",
			PaymentDueDate:   after(12),
		},
		{
			ID:                 "acc_mortgage_001",
			Type:               TypeMortgage,
			Name:               "Home Mortgage",
			Balance:            "-187500.00",
			Currency:           "GBP",
			PropertyAddress:    "24 Cedar Grove, Bristol, BS1 4AB",
			OriginalAmount:     "250000.00",
			OutstandingBalance: "187500.00",
			MonthlyPayment:     "1285.34",
			InterestRate:       "3.85",
			RateType:           "fixed",
			TermEndDate:        after(365 * 21),
			NextPaymentDate:    after(18),
		},
	}

	return &MockGateway{
		customer: Customer{ID: "cust_demo_001", Name: "Alex Morgan"},
		accounts: accounts,
		transactions: map[string][]Transaction{
			"acc_current_001": buildTransactions(day, accounts[0], 20),
			"acc_savings_001": buildTransactions(day, accounts[1], 18),
			"acc_credit_001":  buildTransactions(day, accounts[2], 15),
		},
	}
}

// buildTransactions generates count postings spaced three days apart,
// newest first. Every third posting is a credit. The newest running balance
// is the account balance; older ones walk back through each posting.
func buildTransactions(day time.Time, account Account, count int) []Transaction {
	running := decimal.RequireFromString(account.Balance)

	txs := make([]Transaction, 0, count)
	for i := 0; i < count; i++ {
		amount := decimal.NewFromInt(int64((i%7)*9 + 8))
		kind := Credit
		signed := amount
		if i%3 != 0 {
			kind = Debit
			signed = amount.Neg()
		}
		txs = append(txs, Transaction{
			ID:             fmt.Sprintf("tx_%s_%03d", account.ID, i+1),
			Date:           day.AddDate(0, 0, -3*i).Format(isoDate),
			Description:    merchants[i%len(merchants)],
			Amount:         amount.StringFixed(2),
			Currency:       account.Currency,
			Type:           kind,
			RunningBalance: running.StringFixed(2),
		})
		running = running.Sub(signed)
	}
	return txs
}

func (g *MockGateway) find(accountID string) (Account, error) {
	for _, account := range g.accounts {
		if account.ID == accountID {
			return account, nil
		}
	}
	return Account{}, xerrors.New(xerrors.CodeNotFound, "Account not found",
		xerrors.WithMetadata("account_id", accountID))
}

// Accounts returns the summary view of every account.
func (g *MockGateway) Accounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(g.accounts))
	for _, account := range g.accounts {
		out = append(out, account.Summary())
	}
	return out, nil
}

// AccountDetail returns the full account with its customer.
func (g *MockGateway) AccountDetail(ctx context.Context, accountID string) (*AccountDetail, error) {
	account, err := g.find(accountID)
	if err != nil {
		return nil, err
	}
	return &AccountDetail{Customer: g.customer, Account: account}, nil
}

// Transactions returns at most limit postings, newest first. Accounts
// without postings yield an empty list.
func (g *MockGateway) Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	if _, err := g.find(accountID); err != nil {
		return nil, err
	}
	source := g.transactions[accountID]
	sorted := make([]Transaction, len(source))
	copy(sorted, source)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })

	if limit < 0 {
		limit = 0
	}
	if limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// MortgageSummary returns the repayment view of a mortgage account.
func (g *MockGateway) MortgageSummary(ctx context.Context, accountID string) (*MortgageSummary, error) {
	account, err := g.find(accountID)
	if err != nil {
		return nil, err
	}
	if account.Type != TypeMortgage {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Account is not a mortgage account",
			xerrors.WithMetadata("account_id", accountID))
	}
	return &MortgageSummary{
		ID:                 account.ID,
		PropertyAddress:    account.PropertyAddress,
		OriginalAmount:     account.OriginalAmount,
		OutstandingBalance: account.OutstandingBalance,
		MonthlyPayment:     account.MonthlyPayment,
		InterestRate:       account.InterestRate,
		RateType:           account.RateType,
		TermEndDate:        account.TermEndDate,
		NextPaymentDate:    account.NextPaymentDate,
	}, nil
}

// CreditCardStatement returns the card view with the five latest postings.
func (g *MockGateway) CreditCardStatement(ctx context.Context, accountID string) (*CreditCardStatement, error) {
	account, err := g.find(accountID)
	if err != nil {
		return nil, err
	}
	if account.Type != TypeCredit {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Account is not a credit card account",
			xerrors.WithMetadata("account_id", accountID))
	}
	recent, err := g.Transactions(ctx, accountID, 5)
	if err != nil {
		return nil, err
	}
	return &CreditCardStatement{
		ID:                 account.ID,
		CardNumber:         account.CardNumberMasked,
		CreditLimit:        account.CreditLimit,
		CurrentBalance:     account.Balance,
		AvailableCredit:    account.AvailableCredit,
		MinimumPayment:     account.MinimumPayment,
		PaymentDueDate:     account.PaymentDueDate,
		RecentTransactions: recent,
	}, nil
}
