package banking

// Account types known to the gateway.
const (
	TypeCurrent  = "current"
	TypeSavings  = "savings"
	TypeCredit   = "credit"
	TypeMortgage = "mortgage"
)

// Transaction directions.
const (
	Debit  = "debit"
	Credit = "credit"
)

// Customer owns every account of the demo dataset.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Account is a customer account. Balances are decimal strings; the
// type-specific fields are only populated by AccountDetail.
type Account struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`

	AccountNumber  string `json:"accountNumber,omitempty"`
	SortCode       string `json:"sortCode,omitempty"`
	OverdraftLimit string `json:"overdraftLimit,omitempty"`

	InterestRate   string `json:"interestRate,omitempty"`
	InterestEarned string `json:"interestEarned,omitempty"`

	CardNumberMasked string `json:"cardNumberMasked,omitempty"`
	CreditLimit      string `json:"creditLimit,omitempty"`
	AvailableCredit  string `json:"availableCredit,omitempty"`
	MinimumPayment   string `json:"minimumPayment,omitempty"`
	PaymentDueDate   string `json:"paymentDueDate,omitempty"`

	PropertyAddress    string `json:"propertyAddress,omitempty"`
	OriginalAmount     string `json:"originalAmount,omitempty"`
	OutstandingBalance string `json:"outstandingBalance,omitempty"`
	MonthlyPayment     string `json:"monthlyPayment,omitempty"`
	RateType           string `json:"rateType,omitempty"`
	TermEndDate        string `json:"termEndDate,omitempty"`
	NextPaymentDate    string `json:"nextPaymentDate,omitempty"`
}

// Summary strips the type-specific fields.
func (a Account) Summary() Account {
	return Account{
		ID:       a.ID,
		Type:     a.Type,
		Name:     a.Name,
		Balance:  a.Balance,
		Currency: a.Currency,
	}
}

// AccountDetail is an account together with its owner.
type AccountDetail struct {
	Customer Customer `json:"customer"`
	Account
}

// Transaction is a single posting. Amount is unsigned; Type carries the
// direction. Date is ISO YYYY-MM-DD.
type Transaction struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Type           string `json:"type"`
	RunningBalance string `json:"runningBalance"`
}

// MortgageSummary is returned by get_mortgage_summary.
type MortgageSummary struct {
	ID                 string `json:"id"`
	PropertyAddress    string `json:"propertyAddress"`
	OriginalAmount     string `json:"originalAmount"`
	OutstandingBalance string `json:"outstandingBalance"`
	MonthlyPayment     string `json:"monthlyPayment"`
	InterestRate       string `json:"interestRate"`
	RateType           string `json:"rateType"`
	TermEndDate        string `json:"termEndDate"`
	NextPaymentDate    string `json:"nextPaymentDate"`
}

// CreditCardStatement is returned by get_credit_card_statement.
type CreditCardStatement struct {
	ID                 string        `json:"id"`
	CardNumber         string        `json:"cardNumber"`
	CreditLimit        string        `json:"creditLimit"`
	CurrentBalance     string        `json:"currentBalance"`
	AvailableCredit    string        `json:"availableCredit"`
	MinimumPayment     string        `json:"minimumPayment"`
	PaymentDueDate     string        `json:"paymentDueDate"`
	RecentTransactions []Transaction `json:"recentTransactions"`
}
