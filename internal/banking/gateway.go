package banking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	xerrors "AIBank-Agent/internal/errors"
)

// DefaultTransactionLimit applies when get_transactions is called without a limit.
const DefaultTransactionLimit = 20

// Gateway exposes the read operations of the banking data service.
// Unknown accounts yield CodeNotFound errors.
type Gateway interface {
	Accounts(ctx context.Context) ([]Account, error)
	AccountDetail(ctx context.Context, accountID string) (*AccountDetail, error)
	Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
	MortgageSummary(ctx context.Context, accountID string) (*MortgageSummary, error)
	CreditCardStatement(ctx context.Context, accountID string) (*CreditCardStatement, error)
}

// Tool names understood by Call.
const (
	ToolGetAccounts            = "get_accounts"
	ToolGetAccountDetail       = "get_account_detail"
	ToolGetTransactions        = "get_transactions"
	ToolGetMortgageSummary     = "get_mortgage_summary"
	ToolGetCreditCardStatement = "get_credit_card_statement"
)

// ToolSpec describes a gateway operation for tool discovery.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func accountIDSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"account_id": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"account_id"},
	}
}

// Tools lists the gateway operations in a stable order.
func Tools() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolGetAccounts,
			Description: "Get a list of all customer accounts",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
		{
			Name:        ToolGetAccountDetail,
			Description: "Get detailed information for a specific account",
			InputSchema: accountIDSchema("The unique identifier of the account"),
		},
		{
			Name:        ToolGetTransactions,
			Description: "Get transaction history for an account, newest first",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"account_id": map[string]any{
						"type":        "string",
						"description": "The unique identifier of the account",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of transactions to return (default: 20)",
						"default":     DefaultTransactionLimit,
					},
				},
				"required": []string{"account_id"},
			},
		},
		{
			Name:        ToolGetMortgageSummary,
			Description: "Get mortgage account details and payment information",
			InputSchema: accountIDSchema("The unique identifier of the mortgage account"),
		},
		{
			Name:        ToolGetCreditCardStatement,
			Description: "Get credit card details including balance and transactions",
			InputSchema: accountIDSchema("The unique identifier of the credit card account"),
		},
	}
}

// Call dispatches a named tool invocation with loosely typed arguments, as
// received from MCP clients or LLM tool calls.
func Call(ctx context.Context, gw Gateway, name string, args map[string]any) (any, error) {
	switch name {
	case ToolGetAccounts:
		return gw.Accounts(ctx)
	case ToolGetAccountDetail:
		id, err := accountIDArg(args)
		if err != nil {
			return nil, err
		}
		return gw.AccountDetail(ctx, id)
	case ToolGetTransactions:
		id, err := accountIDArg(args)
		if err != nil {
			return nil, err
		}
		limit, err := limitArg(args)
		if err != nil {
			return nil, err
		}
		return gw.Transactions(ctx, id, limit)
	case ToolGetMortgageSummary:
		id, err := accountIDArg(args)
		if err != nil {
			return nil, err
		}
		return gw.MortgageSummary(ctx, id)
	case ToolGetCreditCardStatement:
		id, err := accountIDArg(args)
		if err != nil {
			return nil, err
		}
		return gw.CreditCardStatement(ctx, id)
	default:
		return nil, xerrors.New(xerrors.CodeUnknownTool, "Unknown tool: "+name)
	}
}

func accountIDArg(args map[string]any) (string, error) {
	raw, ok := args["account_id"]
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "account_id is required")
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "account_id must be a non-empty string")
	}
	return id, nil
}

func limitArg(args map[string]any) (int, error) {
	raw, ok := args["limit"]
	if !ok || raw == nil {
		return DefaultTransactionLimit, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "limit must be an integer")
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "limit must be an integer")
		}
		return n, nil
	default:
		return 0, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("limit has unsupported type %T", raw))
	}
}
