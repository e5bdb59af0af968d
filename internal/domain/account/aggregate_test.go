package account

import (
	"testing"
	"time"

	"github.com/example/bank-es/internal/domain/aggregate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openAccount(t *testing.T, number string) *Account {
	t.Helper()
	a, err := Open(number, "Ada Lovelace", "user-1")
	require.NoError(t, err)
	return a
}

func fundedAccount(t *testing.T, number, balance string) *Account {
	t.Helper()
	a := openAccount(t, number)
	require.NoError(t, a.Deposit(dec(balance)))
	return a
}

// ============================================
// Open Tests
// ============================================

func TestOpen(t *testing.T) {
	a := openAccount(t, "ACC-1")

	assert.NotEmpty(t, a.ID())
	assert.Equal(t, 0, a.Version())
	assert.Equal(t, "ACC-1", a.AccountNumber())
	assert.Equal(t, "Ada Lovelace", a.Holder())
	assert.Equal(t, "user-1", a.OwnerID())
	assert.True(t, a.Balance().IsZero())

	pending := a.UncommittedEvents()
	require.Len(t, pending, 1)
	assert.Equal(t, KindAccountCreated, pending[0].Payload.Kind())
	assert.Equal(t, a.ID(), pending[0].AggregateID)
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name          string
		accountNumber string
		holder        string
		ownerID       string
		wantErr       error
	}{
		{"missing account number", "", "Ada", "user-1", ErrAccountNumberRequired},
		{"blank account number", "   ", "Ada", "user-1", ErrAccountNumberRequired},
		{"missing holder", "ACC-1", "", "user-1", ErrHolderRequired},
		{"missing owner", "ACC-1", "Ada", "", ErrOwnerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(tt.accountNumber, tt.holder, tt.ownerID)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

// ============================================
// Deposit / Withdraw Tests
// ============================================

func TestAccount_Scenario(t *testing.T) {
	a := openAccount(t, "ACC-1")

	require.NoError(t, a.Deposit(dec("100")))
	require.NoError(t, a.Deposit(dec("50")))
	require.NoError(t, a.Withdraw(dec("30")))

	assert.True(t, a.Balance().Equal(dec("120")), "balance %s", a.Balance())
	assert.Equal(t, 3, a.Version())

	pending := a.UncommittedEvents()
	require.Len(t, pending, 4)
	wantKinds := []Kind{KindAccountCreated, KindMoneyDeposited, KindMoneyDeposited, KindMoneyWithdrawn}
	for i, e := range pending {
		assert.Equal(t, i, e.Version)
		assert.Equal(t, wantKinds[i], e.Payload.Kind())
	}
}

func TestDeposit_Threshold(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"0", true},
		{"-5", true},
		{"9.99", true},
		{"10", true},
		{"10.01", false},
		{"500", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			a := openAccount(t, "ACC-1")
			err := a.Deposit(dec(tt.amount))

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDepositTooSmall)
				assert.ErrorIs(t, err, ErrInvalidArgument)
				assert.Equal(t, 0, a.Version())
				assert.True(t, a.Balance().IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, a.Balance().Equal(dec(tt.amount)))
			assert.Equal(t, 1, a.Version())
		})
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	a := fundedAccount(t, "ACC-1", "50")
	a.ClearUncommitted()

	err := a.Withdraw(dec("50.01"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, a.Balance().Equal(dec("50")))
	assert.Equal(t, 1, a.Version())
	assert.Empty(t, a.UncommittedEvents())
}

func TestWithdraw_EntireBalance(t *testing.T) {
	a := fundedAccount(t, "ACC-1", "50")

	require.NoError(t, a.Withdraw(dec("50")))
	assert.True(t, a.Balance().IsZero())
}

func TestWithdraw_NonPositive(t *testing.T) {
	a := fundedAccount(t, "ACC-1", "50")

	for _, amount := range []string{"0", "-1"} {
		err := a.Withdraw(dec(amount))
		assert.ErrorIs(t, err, ErrAmountNotPositive, amount)
	}
	assert.Equal(t, 1, a.Version())
}

// ============================================
// Transfer Tests
// ============================================

func TestTransfer(t *testing.T) {
	sender := fundedAccount(t, "ACC-1", "100")
	receiver := openAccount(t, "ACC-2")

	require.NoError(t, sender.TransferOut("ACC-2", dec("40")))
	require.NoError(t, receiver.TransferIn("ACC-1", dec("40")))

	assert.True(t, sender.Balance().Equal(dec("60")))
	assert.True(t, receiver.Balance().Equal(dec("40")))

	out := sender.UncommittedEvents()[2].Payload.(MoneyTransferredOut)
	assert.Equal(t, "ACC-1", out.FromAccountNumber)
	assert.Equal(t, "ACC-2", out.ToAccountNumber)

	in := receiver.UncommittedEvents()[1].Payload.(MoneyTransferredIn)
	assert.Equal(t, "ACC-1", in.FromAccountNumber)
	assert.Equal(t, "ACC-2", in.ToAccountNumber)
}

func TestTransferOut_Validation(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		amount  string
		wantErr error
	}{
		{"self transfer", "ACC-1", "10", ErrSelfTransfer},
		{"missing counterparty", "", "10", ErrCounterpartyRequired},
		{"zero amount", "ACC-2", "0", ErrAmountNotPositive},
		{"overdraw", "ACC-2", "100.01", ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := fundedAccount(t, "ACC-1", "100")
			err := a.TransferOut(tt.to, dec(tt.amount))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, a.Balance().Equal(dec("100")))
			assert.Equal(t, 1, a.Version())
		})
	}
}

func TestTransferIn_Validation(t *testing.T) {
	a := openAccount(t, "ACC-2")

	assert.ErrorIs(t, a.TransferIn("ACC-2", dec("5")), ErrSelfTransfer)
	assert.ErrorIs(t, a.TransferIn("", dec("5")), ErrCounterpartyRequired)
	assert.ErrorIs(t, a.TransferIn("ACC-1", dec("0")), ErrAmountNotPositive)
	assert.Equal(t, 0, a.Version())
}

// ============================================
// Load / Replay Tests
// ============================================

func TestLoad_MatchesIncrementalState(t *testing.T) {
	a := fundedAccount(t, "ACC-1", "100")
	require.NoError(t, a.Withdraw(dec("25.50")))
	require.NoError(t, a.TransferOut("ACC-9", dec("4.50")))
	require.NoError(t, a.TransferIn("ACC-9", dec("12")))

	loaded, err := Load(a.ID(), a.UncommittedEvents())

	require.NoError(t, err)
	assert.Equal(t, a.Version(), loaded.Version())
	assert.Equal(t, a.AccountNumber(), loaded.AccountNumber())
	assert.True(t, a.Balance().Equal(loaded.Balance()))
	assert.True(t, loaded.Balance().Equal(dec("82")))
	assert.Empty(t, loaded.UncommittedEvents())
}

func TestLoad_NoEvents(t *testing.T) {
	_, err := Load("missing", nil)
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}

func TestRestore_ThenReplay(t *testing.T) {
	a := fundedAccount(t, "ACC-1", "100")
	require.NoError(t, a.Deposit(dec("20")))
	require.NoError(t, a.Withdraw(dec("5")))
	events := a.UncommittedEvents()

	// snapshot taken after version 1
	snap := State{AccountNumber: "ACC-1", Holder: "Ada Lovelace", OwnerID: "user-1", Balance: dec("100")}
	restored, err := Restore(a.ID(), 1, snap)
	require.NoError(t, err)
	require.NoError(t, restored.Replay(events[2:]...))

	assert.Equal(t, a.Version(), restored.Version())
	assert.True(t, restored.Balance().Equal(dec("115")))
	assert.Equal(t, a.State().AccountNumber, restored.State().AccountNumber)
}

func TestReplay_CorruptEvents(t *testing.T) {
	ts := time.Now().UTC()
	created := Event{ID: "e0", AggregateID: "agg", Version: 0, Timestamp: ts,
		Payload: AccountCreated{AccountNumber: "ACC-1", Holder: "Ada", OwnerID: "user-1"}}

	tests := []struct {
		name    string
		events  []Event
		wantErr error
	}{
		{
			name: "deposit before creation",
			events: []Event{
				{ID: "e0", AggregateID: "agg", Version: 0, Payload: MoneyDeposited{Amount: dec("20")}},
			},
			wantErr: ErrCorruptEvent,
		},
		{
			name: "created twice",
			events: []Event{
				created,
				{ID: "e1", AggregateID: "agg", Version: 1, Payload: AccountCreated{AccountNumber: "ACC-1"}},
			},
			wantErr: ErrCorruptEvent,
		},
		{
			name: "transfer out of another account",
			events: []Event{
				created,
				{ID: "e1", AggregateID: "agg", Version: 1, Payload: MoneyTransferredOut{
					FromAccountNumber: "ACC-7", ToAccountNumber: "ACC-2", Amount: dec("1"),
				}},
			},
			wantErr: ErrCorruptEvent,
		},
		{
			name: "transfer into another account",
			events: []Event{
				created,
				{ID: "e1", AggregateID: "agg", Version: 1, Payload: MoneyTransferredIn{
					FromAccountNumber: "ACC-2", ToAccountNumber: "ACC-7", Amount: dec("1"),
				}},
			},
			wantErr: ErrCorruptEvent,
		},
		{
			name:    "missing payload",
			events:  []Event{created, {ID: "e1", AggregateID: "agg", Version: 1}},
			wantErr: ErrUnsupportedEventType,
		},
		{
			name:    "out of order",
			events:  []Event{created, {ID: "e1", AggregateID: "agg", Version: 0, Payload: MoneyDeposited{Amount: dec("20")}}},
			wantErr: aggregate.ErrReplayOrderViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("agg", tt.events)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// ============================================
// Registry Tests
// ============================================

func TestDecodePayload_AllKinds(t *testing.T) {
	bodies := map[Kind]string{
		KindAccountCreated:      `{"account_number":"ACC-1","holder":"Ada","owner_id":"user-1"}`,
		KindMoneyDeposited:      `{"amount":"15.25"}`,
		KindMoneyWithdrawn:      `{"amount":"3"}`,
		KindMoneyTransferredOut: `{"from_account_number":"ACC-1","to_account_number":"ACC-2","amount":"7"}`,
		KindMoneyTransferredIn:  `{"from_account_number":"ACC-2","to_account_number":"ACC-1","amount":"7"}`,
	}

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			body, ok := bodies[kind]
			require.True(t, ok, "no fixture for %s", kind)

			p, err := DecodePayload(string(kind), []byte(body))
			require.NoError(t, err)
			assert.Equal(t, kind, p.Kind())
		})
	}
}

func TestDecodePayload_Amount(t *testing.T) {
	p, err := DecodePayload("MoneyDeposited", []byte(`{"amount":"15.25"}`))
	require.NoError(t, err)

	deposited, ok := p.(MoneyDeposited)
	require.True(t, ok)
	assert.True(t, deposited.Amount.Equal(dec("15.25")))
}

func TestDecodePayload_UnknownKind(t *testing.T) {
	_, err := DecodePayload("AccountClosed", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedEventType)
}

func TestDecodePayload_MalformedBody(t *testing.T) {
	_, err := DecodePayload("MoneyDeposited", []byte(`{"amount":`))
	assert.ErrorIs(t, err, ErrCorruptEvent)
}
