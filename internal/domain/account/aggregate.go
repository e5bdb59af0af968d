package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/bank-es/internal/domain/aggregate"
	"github.com/shopspring/decimal"
)

const AggregateType = "BankAccount"

// MinimumDeposit is exclusive: a deposit must be strictly greater than it.
var MinimumDeposit = decimal.NewFromInt(10)

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrCorruptEvent         = errors.New("corrupt event")
	ErrUnsupportedEventType = errors.New("unsupported event type")

	ErrAccountNumberRequired = fmt.Errorf("%w: account number is required", ErrInvalidArgument)
	ErrHolderRequired        = fmt.Errorf("%w: account holder is required", ErrInvalidArgument)
	ErrOwnerRequired         = fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	ErrDepositTooSmall       = fmt.Errorf("%w: deposit amount must be greater than 10", ErrInvalidArgument)
	ErrAmountNotPositive     = fmt.Errorf("%w: amount must be greater than 0", ErrInvalidArgument)
	ErrCounterpartyRequired  = fmt.Errorf("%w: counterparty account number is required", ErrInvalidArgument)
	ErrSelfTransfer          = fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidArgument)
	ErrAccountNumberTaken    = fmt.Errorf("%w: account number is already in use", ErrInvalidArgument)
)

// State is the materialised account state carried by snapshots.
type State struct {
	AccountNumber string          `json:"account_number"`
	Holder        string          `json:"holder"`
	OwnerID       string          `json:"owner_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// Account is the bank account aggregate. Its fields change only by applying
// events through the embedded root.
type Account struct {
	root    *aggregate.Root[Payload]
	created bool
	state   State
}

var _ visitor = (*Account)(nil)

// Open validates the opening data and records the AccountCreated event on a
// fresh aggregate.
func Open(accountNumber, holder, ownerID string) (*Account, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, ErrAccountNumberRequired
	}
	if strings.TrimSpace(holder) == "" {
		return nil, ErrHolderRequired
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}

	a := &Account{}
	a.root = aggregate.New(a.apply)
	if err := a.record(AccountCreated{
		AccountNumber: accountNumber,
		Holder:        holder,
		OwnerID:       ownerID,
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// Load rebuilds an account from its full history.
func Load(id string, events []Event) (*Account, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", aggregate.ErrAggregateNotFound, id)
	}
	a := &Account{}
	root, err := aggregate.FromHistory(id, events, a.apply)
	if err != nil {
		return nil, err
	}
	a.root = root
	return a, nil
}

// Restore positions an account at a snapshot. Post-snapshot events are then
// folded in with Replay.
func Restore(id string, version int, state State) (*Account, error) {
	a := &Account{created: true, state: state}
	root, err := aggregate.FromSnapshot(id, version, a.apply)
	if err != nil {
		return nil, err
	}
	a.root = root
	return a, nil
}

// Replay folds already persisted events in ascending version order.
func (a *Account) Replay(events ...Event) error {
	for _, e := range events {
		if err := a.root.Replay(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Account) ID() string                 { return a.root.ID() }
func (a *Account) Version() int               { return a.root.Version() }
func (a *Account) AccountNumber() string      { return a.state.AccountNumber }
func (a *Account) Holder() string             { return a.state.Holder }
func (a *Account) OwnerID() string            { return a.state.OwnerID }
func (a *Account) Balance() decimal.Decimal   { return a.state.Balance }
func (a *Account) State() State               { return a.state }
func (a *Account) UncommittedEvents() []Event { return a.root.Uncommitted() }
func (a *Account) ClearUncommitted()          { a.root.ClearUncommitted() }

// Deposit adds money. The amount must exceed MinimumDeposit.
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.GreaterThan(MinimumDeposit) {
		return ErrDepositTooSmall
	}
	return a.record(MoneyDeposited{Amount: amount})
}

// Withdraw removes money that is covered by the current balance.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if err := a.checkDebit(amount); err != nil {
		return err
	}
	return a.record(MoneyWithdrawn{Amount: amount})
}

// TransferOut debits this account in favour of toAccountNumber.
func (a *Account) TransferOut(toAccountNumber string, amount decimal.Decimal) error {
	if err := a.checkCounterparty(toAccountNumber); err != nil {
		return err
	}
	if err := a.checkDebit(amount); err != nil {
		return err
	}
	return a.record(MoneyTransferredOut{
		FromAccountNumber: a.state.AccountNumber,
		ToAccountNumber:   toAccountNumber,
		Amount:            amount,
	})
}

// TransferIn credits this account with money sent from fromAccountNumber.
func (a *Account) TransferIn(fromAccountNumber string, amount decimal.Decimal) error {
	if err := a.checkCounterparty(fromAccountNumber); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	return a.record(MoneyTransferredIn{
		FromAccountNumber: fromAccountNumber,
		ToAccountNumber:   a.state.AccountNumber,
		Amount:            amount,
	})
}

func (a *Account) checkDebit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if amount.GreaterThan(a.state.Balance) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, a.state.Balance, amount)
	}
	return nil
}

func (a *Account) checkCounterparty(accountNumber string) error {
	if strings.TrimSpace(accountNumber) == "" {
		return ErrCounterpartyRequired
	}
	if accountNumber == a.state.AccountNumber {
		return ErrSelfTransfer
	}
	return nil
}

func (a *Account) record(p Payload) error {
	return a.root.RecordAndApply(a.root.NewEvent(p))
}

// apply is the fold function handed to the root.
func (a *Account) apply(e Event) error {
	if e.Payload == nil {
		return fmt.Errorf("%w: event %s has no payload", ErrUnsupportedEventType, e.ID)
	}
	if !a.created && e.Payload.Kind() != KindAccountCreated {
		return fmt.Errorf("%w: %s at version %d precedes account creation", ErrCorruptEvent, e.Payload.Kind(), e.Version)
	}
	return e.Payload.accept(a)
}

func (a *Account) onAccountCreated(e AccountCreated) error {
	if a.created {
		return fmt.Errorf("%w: account %s created twice", ErrCorruptEvent, a.state.AccountNumber)
	}
	a.created = true
	a.state = State{
		AccountNumber: e.AccountNumber,
		Holder:        e.Holder,
		OwnerID:       e.OwnerID,
		Balance:       decimal.Zero,
	}
	return nil
}

func (a *Account) onMoneyDeposited(e MoneyDeposited) error {
	a.state.Balance = a.state.Balance.Add(e.Amount)
	return nil
}

func (a *Account) onMoneyWithdrawn(e MoneyWithdrawn) error {
	a.state.Balance = a.state.Balance.Sub(e.Amount)
	return nil
}

func (a *Account) onMoneyTransferredOut(e MoneyTransferredOut) error {
	if e.FromAccountNumber != a.state.AccountNumber {
		return fmt.Errorf("%w: transfer from %s to %s does not debit account %s",
			ErrCorruptEvent, e.FromAccountNumber, e.ToAccountNumber, a.state.AccountNumber)
	}
	a.state.Balance = a.state.Balance.Sub(e.Amount)
	return nil
}

func (a *Account) onMoneyTransferredIn(e MoneyTransferredIn) error {
	if e.ToAccountNumber != a.state.AccountNumber {
		return fmt.Errorf("%w: transfer from %s to %s does not credit account %s",
			ErrCorruptEvent, e.FromAccountNumber, e.ToAccountNumber, a.state.AccountNumber)
	}
	a.state.Balance = a.state.Balance.Add(e.Amount)
	return nil
}
