package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"AIBank-Agent/internal/banking"
	"AIBank-Agent/internal/entity"
	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/format"
	"AIBank-Agent/internal/geocode"
	"AIBank-Agent/internal/intent"
	"AIBank-Agent/pkg/logger"
)

const (
	// detailTransactionLimit bounds the lists shown on account and
	// transaction screens.
	detailTransactionLimit = 10
	// lookupTransactionLimit bounds the scan used to resolve a transaction id.
	lookupTransactionLimit = 100

	mapToolName = "show-map"
)

// Agent is the deterministic runtime. It never calls a language model.
type Agent struct {
	gateway     banking.Gateway
	geocoder    geocode.Geocoder
	mapEndpoint string
	observer    Observer
	logger      *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithGeocoder sets the geocoder used for transaction locations.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(a *Agent) {
		if g != nil {
			a.geocoder = g
		}
	}
}

// WithMapEndpoint sets the MCP endpoint the map frame points the client at.
func WithMapEndpoint(url string) Option {
	return func(a *Agent) {
		a.mapEndpoint = strings.TrimSpace(url)
	}
}

// WithObserver reports intents and fallbacks, usually to metrics.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		a.observer = o
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a deterministic Agent over gw.
func New(gw banking.Gateway, opts ...Option) *Agent {
	ag := &Agent{
		gateway:  gw,
		geocoder: geocode.Disabled{},
		logger:   logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Run answers one message. Structured UI actions are handled first; any
// other text goes through the intent classifier. Only gateway failures are
// returned as errors.
func (a *Agent) Run(ctx context.Context, message string) (*Response, error) {
	if a.gateway == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "banking gateway is not configured")
	}

	if action, ok := intent.ParseAction(message); ok {
		if tag, routed := action.Route(); routed {
			a.observeIntent(tag)
			a.logger.Debug("user action", slog.String("action", action.Name), slog.String("intent", string(tag)))
			switch tag {
			case intent.SelectTransaction:
				return a.selectTransaction(ctx, action.Context)
			case intent.AccountDetail:
				return a.accountDetail(ctx, action.Context.String("accountId"))
			default:
				return a.overview(ctx)
			}
		}
	}

	tag := intent.Classify(message)
	a.observeIntent(tag)
	a.logger.Debug("classified message", slog.String("intent", string(tag)))

	switch tag {
	case intent.TransactionLocation:
		return a.transactionLocation(ctx, message)
	case intent.Mortgage:
		return a.mortgage(ctx)
	case intent.Credit:
		return a.creditCard(ctx)
	case intent.Savings:
		return a.savings(ctx)
	case intent.Transactions:
		return a.transactions(ctx, message)
	case intent.AccountDetail:
		accounts, err := a.gateway.Accounts(ctx)
		if err != nil {
			return nil, err
		}
		account, err := resolveAccount(accounts, message)
		if err != nil {
			return nil, err
		}
		return a.accountDetail(ctx, account.ID)
	default:
		return a.overview(ctx)
	}
}

func (a *Agent) overview(ctx context.Context) (*Response, error) {
	accounts, err := a.gateway.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	data := format.Overview(accounts)
	return &Response{
		Text:         "Here is an overview of all your accounts.",
		TemplateName: TemplateAccountOverview,
		Data:         data,
	}, nil
}

func (a *Agent) mortgage(ctx context.Context) (*Response, error) {
	account, err := a.firstOfType(ctx, banking.TypeMortgage)
	if err != nil {
		return nil, err
	}
	summary, err := a.gateway.MortgageSummary(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         "Here is your mortgage summary.",
		TemplateName: TemplateMortgageSummary,
		Data:         format.Mortgage(*summary),
	}, nil
}

func (a *Agent) creditCard(ctx context.Context) (*Response, error) {
	account, err := a.firstOfType(ctx, banking.TypeCredit)
	if err != nil {
		return nil, err
	}
	statement, err := a.gateway.CreditCardStatement(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         "Here is your credit card statement.",
		TemplateName: TemplateCreditCardStatement,
		Data:         format.CreditCard(*statement),
	}, nil
}

func (a *Agent) savings(ctx context.Context) (*Response, error) {
	account, err := a.firstOfType(ctx, banking.TypeSavings)
	if err != nil {
		return nil, err
	}
	detail, err := a.gateway.AccountDetail(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         "Here is your savings account summary.",
		TemplateName: TemplateSavingsSummary,
		Data:         format.Savings(*detail),
	}, nil
}

func (a *Agent) transactions(ctx context.Context, message string) (*Response, error) {
	accounts, err := a.gateway.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	account, err := resolveAccount(accounts, message)
	if err != nil {
		return nil, err
	}
	txs, err := a.gateway.Transactions(ctx, account.ID, detailTransactionLimit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         "Here are your latest transactions.",
		TemplateName: TemplateTransactionList,
		Data:         transactionList(account, txs),
	}, nil
}

func (a *Agent) accountDetail(ctx context.Context, accountID string) (*Response, error) {
	detail, err := a.gateway.AccountDetail(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txs, err := a.gateway.Transactions(ctx, accountID, detailTransactionLimit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         fmt.Sprintf("Details for %s.", detail.Name),
		TemplateName: TemplateAccountDetail,
		Data:         format.AccountDetail(*detail, txs),
	}, nil
}

// transactionLocation finds the merchant named in message among the default
// account's recent postings and places it on a map.
func (a *Agent) transactionLocation(ctx context.Context, message string) (*Response, error) {
	account, txs, err := a.defaultTransactions(ctx)
	if err != nil {
		return nil, err
	}

	tx, merchant, ok := entity.ExtractMerchant(message, txs)
	if !ok {
		a.observeFallback(FallbackNoMerchant)
		return &Response{
			Text:         "I couldn't find a matching transaction. Here are your recent transactions.",
			TemplateName: TemplateTransactionList,
			Data:         transactionList(account, txs),
		}, nil
	}

	record := format.Transaction(tx)
	location, found := a.geocoder.GeocodeWithBoundingBox(ctx, merchant)
	if !found {
		a.observeFallback(FallbackGeocodeFailed)
		return singleTransaction(account.Name, record, merchant), nil
	}
	return a.locationResponse(record, merchant, location), nil
}

// selectTransaction handles the selectTransaction UI action.
func (a *Agent) selectTransaction(ctx context.Context, actionCtx intent.Context) (*Response, error) {
	record := format.Fields{}
	for _, key := range actionCtx.Keys() {
		if value, ok := actionCtx.Get(key); ok && value != nil {
			record[key] = value
		}
	}
	transactionID := actionCtx.String("transactionId")
	if transactionID != "" {
		record["id"] = transactionID
	}
	description := actionCtx.String("description")

	accountName := ""
	if description == "" && transactionID != "" {
		tx, owner, found, err := a.findTransaction(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if found {
			description = tx.Description
			accountName = owner.Name
			resolved := format.Transaction(tx)
			for key, value := range record {
				resolved[key] = value
			}
			record = resolved
		}
	}

	if description == "" {
		a.observeFallback(FallbackNoDescription)
		account, txs, err := a.defaultTransactions(ctx)
		if err != nil {
			return nil, err
		}
		return &Response{
			Text:         "Here are your latest transactions.",
			TemplateName: TemplateTransactionList,
			Data:         transactionList(account, txs),
		}, nil
	}
	record["description"] = description

	location, found := a.geocoder.GeocodeWithBoundingBox(ctx, description)
	if !found {
		a.observeFallback(FallbackGeocodeFailed)
		return singleTransaction(accountName, record, description), nil
	}
	return a.locationResponse(record, description, location), nil
}

func (a *Agent) locationResponse(record format.Fields, merchant string, location geocode.Result) *Response {
	return &Response{
		Text:         fmt.Sprintf("Here is where your %s transaction took place.", merchant),
		TemplateName: TemplateTransactionLocation,
		Data: map[string]any{
			"transaction": record,
			"frame":       a.frame(location),
		},
	}
}

// frame describes the embedded map app for the client.
func (a *Agent) frame(location geocode.Result) format.Fields {
	box := location.BBox
	if box == nil {
		box = &geocode.BoundingBox{
			West:  location.Longitude - 0.01,
			South: location.Latitude - 0.01,
			East:  location.Longitude + 0.01,
			North: location.Latitude + 0.01,
		}
	}
	return format.Fields{
		"toolName": mapToolName,
		"toolInput": format.Fields{
			"west":  box.West,
			"south": box.South,
			"east":  box.East,
			"north": box.North,
			"label": location.Label,
		},
		"mcpEndpointUrl": a.mapEndpoint,
	}
}

func (a *Agent) findTransaction(ctx context.Context, id string) (banking.Transaction, banking.Account, bool, error) {
	accounts, err := a.gateway.Accounts(ctx)
	if err != nil {
		return banking.Transaction{}, banking.Account{}, false, err
	}
	for _, account := range accounts {
		txs, err := a.gateway.Transactions(ctx, account.ID, lookupTransactionLimit)
		if err != nil {
			return banking.Transaction{}, banking.Account{}, false, err
		}
		for _, tx := range txs {
			if tx.ID == id {
				return tx, account, true, nil
			}
		}
	}
	return banking.Transaction{}, banking.Account{}, false, nil
}

// defaultTransactions returns the default account and its recent postings.
func (a *Agent) defaultTransactions(ctx context.Context) (banking.Account, []banking.Transaction, error) {
	accounts, err := a.gateway.Accounts(ctx)
	if err != nil {
		return banking.Account{}, nil, err
	}
	account, err := defaultAccount(accounts)
	if err != nil {
		return banking.Account{}, nil, err
	}
	txs, err := a.gateway.Transactions(ctx, account.ID, banking.DefaultTransactionLimit)
	if err != nil {
		return banking.Account{}, nil, err
	}
	return account, txs, nil
}

func (a *Agent) firstOfType(ctx context.Context, kind string) (banking.Account, error) {
	accounts, err := a.gateway.Accounts(ctx)
	if err != nil {
		return banking.Account{}, err
	}
	for _, account := range accounts {
		if account.Type == kind {
			return account, nil
		}
	}
	return banking.Account{}, xerrors.New(xerrors.CodeNotFound, "no "+kind+" account",
		xerrors.WithMetadata("account_type", kind))
}

func (a *Agent) observeIntent(tag intent.Tag) {
	if a.observer != nil {
		a.observer.ObserveIntent(string(tag))
	}
}

func (a *Agent) observeFallback(reason string) {
	a.logger.Info("fallback response", slog.String("reason", reason))
	if a.observer != nil {
		a.observer.ObserveFallback(reason)
	}
}

// resolveAccount picks the account named in message, else the current
// account, else the first one.
func resolveAccount(accounts []banking.Account, message string) (banking.Account, error) {
	m := strings.ToLower(message)
	for _, account := range accounts {
		if name := strings.ToLower(strings.TrimSpace(account.Name)); name != "" && strings.Contains(m, name) {
			return account, nil
		}
	}
	return defaultAccount(accounts)
}

func defaultAccount(accounts []banking.Account) (banking.Account, error) {
	if len(accounts) == 0 {
		return banking.Account{}, xerrors.New(xerrors.CodeNotFound, "no accounts available")
	}
	for _, account := range accounts {
		if account.Type == banking.TypeCurrent {
			return account, nil
		}
	}
	return accounts[0], nil
}

func transactionList(account banking.Account, txs []banking.Transaction) map[string]any {
	return map[string]any{
		"transactions":     format.Transactions(txs),
		"accountName":      account.Name,
		"transactionCount": len(txs),
	}
}

func singleTransaction(accountName string, record format.Fields, merchant string) *Response {
	data := map[string]any{
		"transactions":     format.IndexedMap([]format.Fields{record}),
		"transactionCount": 1,
	}
	if accountName != "" {
		data["accountName"] = accountName
	}
	return &Response{
		Text:         fmt.Sprintf("I couldn't find a location for %s. Here is the transaction.", merchant),
		TemplateName: TemplateTransactionList,
		Data:         data,
	}
}
