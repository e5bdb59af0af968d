package account

import (
	"encoding/json"
	"fmt"

	"github.com/example/bank-es/internal/domain/aggregate"
	"github.com/shopspring/decimal"
)

// Kind is the persisted discriminant of an account event.
type Kind string

const (
	KindAccountCreated      Kind = "AccountCreated"
	KindMoneyDeposited      Kind = "MoneyDeposited"
	KindMoneyWithdrawn      Kind = "MoneyWithdrawn"
	KindMoneyTransferredOut Kind = "MoneyTransferredOut"
	KindMoneyTransferredIn  Kind = "MoneyTransferredIn"
)

// Payload is the closed set of account events. The unexported accept method
// seals the union to this package; every payload dispatches to its own
// visitor method, so a new kind does not compile until Account handles it.
type Payload interface {
	Kind() Kind
	accept(v visitor) error
}

type visitor interface {
	onAccountCreated(AccountCreated) error
	onMoneyDeposited(MoneyDeposited) error
	onMoneyWithdrawn(MoneyWithdrawn) error
	onMoneyTransferredOut(MoneyTransferredOut) error
	onMoneyTransferredIn(MoneyTransferredIn) error
}

// Event is an account event as seen by the aggregate root.
type Event = aggregate.Event[Payload]

type AccountCreated struct {
	AccountNumber string `json:"account_number"`
	Holder        string `json:"holder"`
	OwnerID       string `json:"owner_id"`
}

type MoneyDeposited struct {
	Amount decimal.Decimal `json:"amount"`
}

type MoneyWithdrawn struct {
	Amount decimal.Decimal `json:"amount"`
}

// MoneyTransferredOut is recorded on the sending account.
type MoneyTransferredOut struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
}

// MoneyTransferredIn is recorded on the receiving account.
type MoneyTransferredIn struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
}

func (AccountCreated) Kind() Kind      { return KindAccountCreated }
func (MoneyDeposited) Kind() Kind      { return KindMoneyDeposited }
func (MoneyWithdrawn) Kind() Kind      { return KindMoneyWithdrawn }
func (MoneyTransferredOut) Kind() Kind { return KindMoneyTransferredOut }
func (MoneyTransferredIn) Kind() Kind  { return KindMoneyTransferredIn }

func (e AccountCreated) accept(v visitor) error      { return v.onAccountCreated(e) }
func (e MoneyDeposited) accept(v visitor) error      { return v.onMoneyDeposited(e) }
func (e MoneyWithdrawn) accept(v visitor) error      { return v.onMoneyWithdrawn(e) }
func (e MoneyTransferredOut) accept(v visitor) error { return v.onMoneyTransferredOut(e) }
func (e MoneyTransferredIn) accept(v visitor) error  { return v.onMoneyTransferredIn(e) }

// decoders is the static registry from persisted kind names to payloads.
var decoders = map[Kind]func([]byte) (Payload, error){
	KindAccountCreated:      decodeAs[AccountCreated],
	KindMoneyDeposited:      decodeAs[MoneyDeposited],
	KindMoneyWithdrawn:      decodeAs[MoneyWithdrawn],
	KindMoneyTransferredOut: decodeAs[MoneyTransferredOut],
	KindMoneyTransferredIn:  decodeAs[MoneyTransferredIn],
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePayload resolves a persisted kind name and decodes its JSON body.
func DecodePayload(kind string, data []byte) (Payload, error) {
	decode, ok := decoders[Kind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventType, kind)
	}
	p, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrCorruptEvent, kind, err)
	}
	return p, nil
}

// Kinds lists every registered event kind.
func Kinds() []Kind {
	return []Kind{
		KindAccountCreated,
		KindMoneyDeposited,
		KindMoneyWithdrawn,
		KindMoneyTransferredOut,
		KindMoneyTransferredIn,
	}
}
