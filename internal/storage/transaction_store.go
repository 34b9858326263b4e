package storage

import (
	"strings"
	"time"
)

// Transaction types recognised by the type filter
const (
	TxCredit     = "credit"
	TxDebit      = "debit"
	TxTransfer   = "transfer"
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxPayment    = "payment"
	TxRefund     = "refund"
)

// TransactionTypes lists every known transaction type
var TransactionTypes = []string{TxCredit, TxDebit, TxTransfer, TxDeposit, TxWithdrawal, TxPayment, TxRefund}

// Counterparty is the other side of a transaction
type Counterparty struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Transaction is a wallet transaction as served by the backend.
// Amount is in minor currency units.
type Transaction struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Status       string       `json:"status,omitempty"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency,omitempty"`
	Description  string       `json:"description,omitempty"`
	Reference    string       `json:"reference,omitempty"`
	Counterparty Counterparty `json:"counterparty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TransactionSchema describes how a TransactionStore indexes transactions
var TransactionSchema = Schema[*Transaction]{
	ID:        func(t *Transaction) string { return t.ID },
	Timestamp: func(t *Transaction) time.Time { return t.CreatedAt },
	Type:      func(t *Transaction) string { return t.Type },
	SearchFields: func(t *Transaction) []string {
		return []string{
			t.Description,
			t.Reference,
			t.Counterparty.Name,
			t.Counterparty.Email,
			t.Counterparty.Phone,
		}
	},
	KnownTypes: TransactionTypes,
}

// Totals summarises the amounts of a filtered transaction view for one currency
type Totals struct {
	Currency string `json:"currency"`
	Inflow   int64  `json:"inflow"`
	Outflow  int64  `json:"outflow"`
	Net      int64  `json:"net"`
	Count    int    `json:"count"`
}

// TransactionStore is an EntityStore of transactions
type TransactionStore struct {
	*EntityStore[*Transaction]
}

// NewTransactionStore creates a transaction store
func NewTransactionStore(config EntityStoreConfig) (*TransactionStore, error) {
	if config.Name == "" {
		config.Name = "transactions"
	}
	store, err := NewEntityStore(TransactionSchema, config)
	if err != nil {
		return nil, err
	}
	return &TransactionStore{EntityStore: store}, nil
}

// Totals sums amounts per currency over GetFiltered("", typeFilter, dateFilter).
// Credits, deposits and refunds count as inflow; everything else as outflow.
func (s *TransactionStore) Totals(typeFilter, dateFilter string) map[string]Totals {
	out := make(map[string]Totals)
	for _, tx := range s.GetFiltered("", typeFilter, dateFilter) {
		currency := strings.ToUpper(tx.Currency)
		t := out[currency]
		t.Currency = currency
		t.Count++
		if isInflow(tx.Type) {
			t.Inflow += tx.Amount
		} else {
			t.Outflow += tx.Amount
		}
		t.Net = t.Inflow - t.Outflow
		out[currency] = t
	}
	return out
}

func isInflow(typ string) bool {
	switch strings.ToLower(typ) {
	case TxCredit, TxDeposit, TxRefund:
		return true
	default:
		return false
	}
}
