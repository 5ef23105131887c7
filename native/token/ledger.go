package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"stablecore/crypto"
)

var (
	ErrUnknownToken          = errors.New("token ledger: unknown token")
	ErrTokenExists           = errors.New("token ledger: token already registered")
	ErrInvalidAmount         = errors.New("token ledger: amount must be positive")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	ErrNotMintAuthority      = errors.New("token ledger: caller is not a mint authority")
	ErrNilStorage            = errors.New("token ledger: storage not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Info describes a registered fungible token. Authorities is the mint/burn
// whitelist; it is only ever populated for the protocol debt token.
type Info struct {
	Symbol      string           `json:"symbol"`
	Decimals    uint8            `json:"decimals"`
	TotalSupply *big.Int         `json:"totalSupply"`
	Authorities []crypto.Address `json:"authorities,omitempty"`
}

type balanceRecord struct {
	Amount *big.Int `json:"amount"`
}

// Ledger persists token metadata, balances and allowances in the underlying
// key-value store. All mutations run inside the engine's single logical lock,
// so the ledger itself carries no synchronisation.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func metaKey(symbol string) []byte {
	return []byte("token/meta/" + symbol)
}

func balanceKey(symbol string, addr crypto.Address) []byte {
	return []byte("token/bal/" + symbol + "/" + string(addr.Bytes()))
}

func allowanceKey(symbol string, owner, spender crypto.Address) []byte {
	return []byte("token/allow/" + symbol + "/" + string(owner.Bytes()) + "/" + string(spender.Bytes()))
}

// NormalizeSymbol canonicalises a token symbol for ledger lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Register creates a new token with zero supply.
func (l *Ledger) Register(symbol string, decimals uint8) error {
	if l == nil || l.store == nil {
		return ErrNilStorage
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("token ledger: symbol required")
	}
	var existing Info
	found, err := l.store.KVGet(metaKey(sym), &existing)
	if err != nil {
		return err
	}
	if found {
		return ErrTokenExists
	}
	return l.store.KVPut(metaKey(sym), &Info{
		Symbol:      sym,
		Decimals:    decimals,
		TotalSupply: big.NewInt(0),
	})
}

// Token returns the metadata for the given symbol.
func (l *Ledger) Token(symbol string) (*Info, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStorage
	}
	sym := NormalizeSymbol(symbol)
	var info Info
	found, err := l.store.KVGet(metaKey(sym), &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownToken
	}
	if info.TotalSupply == nil {
		info.TotalSupply = big.NewInt(0)
	}
	return &info, nil
}

// SetAuthority adds or removes a mint/burn authority for the token. Gating on
// who may call this lives with the engine owner surface.
func (l *Ledger) SetAuthority(symbol string, addr crypto.Address, allowed bool) error {
	info, err := l.Token(symbol)
	if err != nil {
		return err
	}
	filtered := make([]crypto.Address, 0, len(info.Authorities))
	for _, existing := range info.Authorities {
		if !existing.Equal(addr) {
			filtered = append(filtered, existing)
		}
	}
	if allowed {
		filtered = append(filtered, addr.Clone())
	}
	info.Authorities = filtered
	return l.store.KVPut(metaKey(info.Symbol), info)
}

// IsAuthority reports whether addr may mint or burn the token.
func (l *Ledger) IsAuthority(symbol string, addr crypto.Address) (bool, error) {
	info, err := l.Token(symbol)
	if err != nil {
		return false, err
	}
	for _, existing := range info.Authorities {
		if existing.Equal(addr) {
			return true, nil
		}
	}
	return false, nil
}

// BalanceOf returns the current balance, zero for unseen accounts.
func (l *Ledger) BalanceOf(symbol string, addr crypto.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStorage
	}
	if _, err := l.Token(symbol); err != nil {
		return nil, err
	}
	var rec balanceRecord
	found, err := l.store.KVGet(balanceKey(NormalizeSymbol(symbol), addr), &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.Amount == nil {
		return big.NewInt(0), nil
	}
	return rec.Amount, nil
}

func (l *Ledger) putBalance(symbol string, addr crypto.Address, amount *big.Int) error {
	key := balanceKey(symbol, addr)
	if amount.Sign() == 0 {
		return l.store.KVDelete(key)
	}
	return l.store.KVPut(key, &balanceRecord{Amount: amount})
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(symbol string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	sym := NormalizeSymbol(symbol)
	fromBal, err := l.BalanceOf(sym, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.BalanceOf(sym, to)
	if err != nil {
		return err
	}
	if err := l.putBalance(sym, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.putBalance(sym, to, new(big.Int).Add(toBal, amount))
}

// Approve records an allowance from owner to spender, replacing any previous
// value.
func (l *Ledger) Approve(symbol string, owner, spender crypto.Address, amount *big.Int) error {
	if l == nil || l.store == nil {
		return ErrNilStorage
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	sym := NormalizeSymbol(symbol)
	if _, err := l.Token(sym); err != nil {
		return err
	}
	key := allowanceKey(sym, owner, spender)
	if amount.Sign() == 0 {
		return l.store.KVDelete(key)
	}
	return l.store.KVPut(key, &balanceRecord{Amount: amount})
}

// Allowance returns the remaining allowance from owner to spender.
func (l *Ledger) Allowance(symbol string, owner, spender crypto.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStorage
	}
	sym := NormalizeSymbol(symbol)
	if _, err := l.Token(sym); err != nil {
		return nil, err
	}
	var rec balanceRecord
	found, err := l.store.KVGet(allowanceKey(sym, owner, spender), &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.Amount == nil {
		return big.NewInt(0), nil
	}
	return rec.Amount, nil
}

// TransferFrom spends the spender's allowance to move funds out of the owner
// account.
func (l *Ledger) TransferFrom(symbol string, spender, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	sym := NormalizeSymbol(symbol)
	allowance, err := l.Allowance(sym, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(sym, from, to, amount); err != nil {
		return err
	}
	return l.Approve(sym, from, spender, new(big.Int).Sub(allowance, amount))
}

// Mint creates new supply for the token. The authority must be whitelisted.
func (l *Ledger) Mint(symbol string, authority, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	info, err := l.Token(symbol)
	if err != nil {
		return err
	}
	ok, err := l.IsAuthority(info.Symbol, authority)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMintAuthority
	}
	toBal, err := l.BalanceOf(info.Symbol, to)
	if err != nil {
		return err
	}
	if err := l.putBalance(info.Symbol, to, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	info.TotalSupply = new(big.Int).Add(info.TotalSupply, amount)
	return l.store.KVPut(metaKey(info.Symbol), info)
}

// Burn destroys supply held by from. The authority must be whitelisted.
func (l *Ledger) Burn(symbol string, authority, from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	info, err := l.Token(symbol)
	if err != nil {
		return err
	}
	ok, err := l.IsAuthority(info.Symbol, authority)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMintAuthority
	}
	fromBal, err := l.BalanceOf(info.Symbol, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.putBalance(info.Symbol, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	info.TotalSupply = new(big.Int).Sub(info.TotalSupply, amount)
	return l.store.KVPut(metaKey(info.Symbol), info)
}
