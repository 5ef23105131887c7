package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"stablecore/crypto"
	"stablecore/native/stability"
	"stablecore/native/vault"
	"stablecore/storage"
)

// ErrAmountOutOfRange rejects values that do not fit an unsigned 256-bit
// word. Vault amounts, collateral parameters, the debt and collateral totals,
// pool deposits and deposit amounts are gated through it; the pool's P, scale
// sums, error buckets and deposit snapshots, the redemption fee and
// LastRecordedAccruedDebt are stored without the check.
var ErrAmountOutOfRange = errors.New("state: amount out of u256 range")

// Manager persists engine records in the key-value store. Logical keys are
// hashed before they reach the database so record layout stays uniform and
// key length is bounded; payloads are canonical JSON.
type Manager struct {
	db storage.Database
}

// NewManager binds a manager to its database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func stateKey(logical string) []byte {
	return ethcrypto.Keccak256([]byte(logical))
}

// checkAmount verifies the value is a non-negative integer representable in
// 256 bits.
func checkAmount(amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrAmountOutOfRange
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOutOfRange
	}
	return nil
}

// --- generic KV (token ledger storage boundary) ---

// KVGet loads and decodes the record under the logical key, reporting whether
// it exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: database not configured")
	}
	raw, err := m.db.Get(stateKey(string(key)))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", string(key), err)
	}
	return true, nil
}

// KVPut encodes and stores the record under the logical key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", string(key), err)
	}
	return m.db.Put(stateKey(string(key)), raw)
}

// KVDelete removes the record under the logical key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	return m.db.Delete(stateKey(string(key)))
}

// --- vault engine state ---

func vaultRecordKey(asset string, owner crypto.Address) string {
	return "vault/rec/" + asset + "/" + string(owner.Bytes())
}

func collateralParamsKey(asset string) string {
	return "vault/params/" + asset
}

const globalStateKey = "vault/global"

func (m *Manager) GetVault(asset string, owner crypto.Address) (*vault.Vault, error) {
	var v vault.Vault
	found, err := m.KVGet([]byte(vaultRecordKey(asset, owner)), &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &v, nil
}

func (m *Manager) PutVault(asset string, owner crypto.Address, v *vault.Vault) error {
	if v == nil {
		return fmt.Errorf("state: nil vault record")
	}
	for _, amount := range []*big.Int{v.Collateral, v.Debt, v.MCR} {
		if err := checkAmount(amount); err != nil {
			return err
		}
	}
	return m.KVPut([]byte(vaultRecordKey(asset, owner)), v)
}

func (m *Manager) DeleteVault(asset string, owner crypto.Address) error {
	return m.KVDelete([]byte(vaultRecordKey(asset, owner)))
}

func (m *Manager) GetCollateralParams(asset string) (*vault.CollateralParams, error) {
	var p vault.CollateralParams
	found, err := m.KVGet([]byte(collateralParamsKey(asset)), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (m *Manager) PutCollateralParams(asset string, p *vault.CollateralParams) error {
	if p == nil {
		return fmt.Errorf("state: nil collateral params")
	}
	for _, amount := range []*big.Int{p.MinRange, p.MaxRange, p.MCRFactor, p.BaseFee, p.MaxFee, p.MinNetDebt, p.MintCap, p.LiquidationPenalty} {
		if err := checkAmount(amount); err != nil {
			return err
		}
	}
	return m.KVPut([]byte(collateralParamsKey(asset)), p)
}

func (m *Manager) GetGlobal() (*vault.GlobalState, error) {
	var g vault.GlobalState
	found, err := m.KVGet([]byte(globalStateKey), &g)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &g, nil
}

func (m *Manager) PutGlobal(g *vault.GlobalState) error {
	if g == nil {
		return fmt.Errorf("state: nil global state")
	}
	if err := checkAmount(g.TotalProtocolDebt); err != nil {
		return err
	}
	if err := checkAmount(g.TotalAccruedDebt); err != nil {
		return err
	}
	for _, totals := range []map[string]*big.Int{g.TotalDebt, g.TotalCollateral} {
		for _, amount := range totals {
			if err := checkAmount(amount); err != nil {
				return err
			}
		}
	}
	return m.KVPut([]byte(globalStateKey), g)
}

// --- stability pool state ---

const poolStateKey = "stability/pool"

func poolDepositKey(addr crypto.Address) string {
	return "stability/dep/" + string(addr.Bytes())
}

func poolSumKey(asset string, epoch, scale uint64) string {
	return fmt.Sprintf("stability/sum/%s/%d/%d", asset, epoch, scale)
}

func (m *Manager) GetPool() (*stability.PoolState, error) {
	var ps stability.PoolState
	found, err := m.KVGet([]byte(poolStateKey), &ps)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ps, nil
}

func (m *Manager) PutPool(ps *stability.PoolState) error {
	if ps == nil {
		return fmt.Errorf("state: nil pool state")
	}
	if err := checkAmount(ps.TotalDeposits); err != nil {
		return err
	}
	return m.KVPut([]byte(poolStateKey), ps)
}

func (m *Manager) GetDeposit(addr crypto.Address) (*stability.Deposit, error) {
	var d stability.Deposit
	found, err := m.KVGet([]byte(poolDepositKey(addr)), &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

func (m *Manager) PutDeposit(addr crypto.Address, d *stability.Deposit) error {
	if d == nil {
		return fmt.Errorf("state: nil deposit record")
	}
	if err := checkAmount(d.Amount); err != nil {
		return err
	}
	return m.KVPut([]byte(poolDepositKey(addr)), d)
}

func (m *Manager) DeleteDeposit(addr crypto.Address) error {
	return m.KVDelete([]byte(poolDepositKey(addr)))
}

type sumRecord struct {
	Sum *big.Int `json:"sum"`
}

func (m *Manager) GetScaleSum(asset string, epoch, scale uint64) (*big.Int, error) {
	var rec sumRecord
	found, err := m.KVGet([]byte(poolSumKey(asset, epoch, scale)), &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.Sum == nil {
		return big.NewInt(0), nil
	}
	return rec.Sum, nil
}

func (m *Manager) PutScaleSum(asset string, epoch, scale uint64, sum *big.Int) error {
	return m.KVPut([]byte(poolSumKey(asset, epoch, scale)), &sumRecord{Sum: sum})
}
