package command

import (
	"github.com/example/bank-es/internal/domain/account"
	"github.com/shopspring/decimal"
)

// RequestedBy, when set, must match the owner of the account being acted on.

type CreateAccount struct {
	AccountNumber string `json:"account_number"`
	Holder        string `json:"holder"`
	OwnerID       string `json:"owner_id"`
}

type Deposit struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"-"`
}

type Withdraw struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"-"`
}

type Transfer struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedBy   string          `json:"-"`
}

type GetAccount struct {
	AccountID   string `json:"account_id"`
	RequestedBy string `json:"-"`
}

// AccountView is the state of an account right after a command.
type AccountView struct {
	ID            string          `json:"id"`
	Version       int             `json:"version"`
	AccountNumber string          `json:"account_number"`
	Holder        string          `json:"holder"`
	OwnerID       string          `json:"owner_id"`
	Balance       decimal.Decimal `json:"balance"`
}

type TransferResult struct {
	From AccountView `json:"from"`
	To   AccountView `json:"to"`
}

func viewOf(a *account.Account) AccountView {
	return AccountView{
		ID:            a.ID(),
		Version:       a.Version(),
		AccountNumber: a.AccountNumber(),
		Holder:        a.Holder(),
		OwnerID:       a.OwnerID(),
		Balance:       a.Balance(),
	}
}
