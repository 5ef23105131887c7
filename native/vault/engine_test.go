package vault

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"stablecore/crypto"
)

const stableSym = "STABLE"

// --- mocks ---

type mockEngineState struct {
	vaults map[string]*Vault
	params map[string]*CollateralParams
	global *GlobalState
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		vaults: make(map[string]*Vault),
		params: make(map[string]*CollateralParams),
	}
}

func vaultKey(asset string, owner crypto.Address) string {
	return asset + "/" + string(owner.Bytes())
}

func (m *mockEngineState) GetVault(asset string, owner crypto.Address) (*Vault, error) {
	if v, ok := m.vaults[vaultKey(asset, owner)]; ok {
		return v.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutVault(asset string, owner crypto.Address, v *Vault) error {
	m.vaults[vaultKey(asset, owner)] = v.Clone()
	return nil
}

func (m *mockEngineState) DeleteVault(asset string, owner crypto.Address) error {
	delete(m.vaults, vaultKey(asset, owner))
	return nil
}

func (m *mockEngineState) GetCollateralParams(asset string) (*CollateralParams, error) {
	if p, ok := m.params[asset]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutCollateralParams(asset string, p *CollateralParams) error {
	m.params[asset] = p.Clone()
	return nil
}

// Global state crosses the mock boundary as a JSON round trip so aborted
// operations cannot leak in-memory mutations, matching the real manager.
func cloneGlobal(g *GlobalState) (*GlobalState, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	var cloned GlobalState
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return nil, err
	}
	return &cloned, nil
}

func (m *mockEngineState) GetGlobal() (*GlobalState, error) {
	return cloneGlobal(m.global)
}

func (m *mockEngineState) PutGlobal(g *GlobalState) error {
	cloned, err := cloneGlobal(g)
	if err != nil {
		return err
	}
	m.global = cloned
	return nil
}

type mockBank struct {
	balances map[string]*big.Int
	supply   map[string]*big.Int
}

func newMockBank() *mockBank {
	return &mockBank{
		balances: make(map[string]*big.Int),
		supply:   make(map[string]*big.Int),
	}
}

func balKey(token string, addr crypto.Address) string {
	return token + "/" + string(addr.Bytes())
}

func (b *mockBank) balance(token string, addr crypto.Address) *big.Int {
	if bal, ok := b.balances[balKey(token, addr)]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (b *mockBank) credit(token string, addr crypto.Address, amount *big.Int) {
	b.balances[balKey(token, addr)] = new(big.Int).Add(b.balance(token, addr), amount)
}

func (b *mockBank) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	if b.balance(token, from).Cmp(amount) < 0 {
		return errors.New("mock bank: insufficient balance")
	}
	b.balances[balKey(token, from)] = new(big.Int).Sub(b.balance(token, from), amount)
	b.credit(token, to, amount)
	return nil
}

func (b *mockBank) Mint(token string, _, to crypto.Address, amount *big.Int) error {
	b.credit(token, to, amount)
	if b.supply[token] == nil {
		b.supply[token] = big.NewInt(0)
	}
	b.supply[token] = new(big.Int).Add(b.supply[token], amount)
	return nil
}

func (b *mockBank) Burn(token string, _, from crypto.Address, amount *big.Int) error {
	if b.balance(token, from).Cmp(amount) < 0 {
		return errors.New("mock bank: insufficient balance to burn")
	}
	b.balances[balKey(token, from)] = new(big.Int).Sub(b.balance(token, from), amount)
	b.supply[token] = new(big.Int).Sub(b.supply[token], amount)
	return nil
}

func (b *mockBank) BalanceOf(token string, addr crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(b.balance(token, addr)), nil
}

type mockOracle struct {
	prices map[string]*big.Int
	err    error
}

func (o *mockOracle) FetchPrice(asset string) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	if price, ok := o.prices[asset]; ok {
		return new(big.Int).Set(price), nil
	}
	return nil, errors.New("mock oracle: no price")
}

type mockPool struct {
	deposits   *big.Int
	lastOffset *big.Int
	lastColl   *big.Int
	lastAsset  string
}

func (p *mockPool) TotalDeposits() (*big.Int, error) {
	if p.deposits == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(p.deposits), nil
}

func (p *mockPool) OffsetDebt(_ crypto.Address, debtToOffset *big.Int, asset string, collAdded *big.Int) error {
	p.lastOffset = new(big.Int).Set(debtToOffset)
	p.lastColl = new(big.Int).Set(collAdded)
	p.lastAsset = asset
	p.deposits = new(big.Int).Sub(p.deposits, debtToOffset)
	return nil
}

// --- fixture ---

type engineFixture struct {
	state  *mockEngineState
	bank   *mockBank
	oracle *mockOracle
	pool   *mockPool
	engine *Engine
	now    uint64

	owner  crypto.Address
	module crypto.Address
	alice  crypto.Address
	bob    crypto.Address
	carol  crypto.Address
	none   crypto.Address
}

func wadInt(t *testing.T, value string) *big.Int {
	t.Helper()
	return bigFromString(t, value)
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		state:  newMockEngineState(),
		bank:   newMockBank(),
		oracle: &mockOracle{prices: map[string]*big.Int{}},
		pool:   &mockPool{deposits: big.NewInt(0)},
		now:    1_700_000_000,
		owner:  testAddr(0xA0),
		module: testAddr(0xA1),
		alice:  testAddr(0x01),
		bob:    testAddr(0x02),
		carol:  testAddr(0x03),
	}
	f.engine = NewEngine(f.owner, f.module)
	f.engine.SetState(f.state)
	f.engine.SetTokenBank(f.bank)
	f.engine.SetOracle(f.oracle)
	f.engine.SetStabilityPool(f.pool)
	f.engine.SetStableToken(stableSym)
	f.engine.SetNowFunc(func() uint64 { return f.now })

	if err := f.engine.Initialize(f.owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.engine.AddCollateral(f.owner, testAsset, 18); err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	if err := f.engine.SetCollateralParameters(f.owner, testAsset,
		wadInt(t, "110000000000000000000"),     // min range 110%
		wadInt(t, "200000000000000000000"),     // max range 200%
		wadInt(t, "1000000000000000000"),       // mcr factor 1.0
		wadInt(t, "10000000000000000"),         // base fee 1%
		wadInt(t, "100000000000000000"),        // max fee 10%
		wadInt(t, "100000000000000000000"),     // min net debt 100
		wadInt(t, "1000000000000000000000000"), // mint cap 1,000,000
		wadInt(t, "25000000000000000"),         // penalty 2.5%
	); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if err := f.engine.SetIsActive(f.owner, testAsset, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.oracle.prices[testAsset] = wadInt(t, "6000000000000000000")
	return f
}

func (f *engineFixture) fund(token string, addr crypto.Address, amount *big.Int) {
	f.bank.credit(token, addr, amount)
}

func (f *engineFixture) vault(t *testing.T, owner crypto.Address) *Vault {
	t.Helper()
	v, err := f.engine.Store().Vault(testAsset, owner)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	return v
}

func (f *engineFixture) create(t *testing.T, owner crypto.Address, coll, debt, mcr string) {
	t.Helper()
	collAmt := bigFromString(t, coll)
	f.fund(testAsset, owner, collAmt)
	if err := f.engine.CreateVault(owner, testAsset, collAmt, bigFromString(t, debt), bigFromString(t, mcr), f.none, f.none); err != nil {
		t.Fatalf("create vault: %v", err)
	}
}

// --- tests ---

func TestCreateVaultLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	v := f.vault(t, f.alice)
	if !v.Active() {
		t.Fatalf("vault not active after create")
	}
	if v.Collateral.Cmp(bigFromString(t, "800000000000000000000")) != 0 {
		t.Fatalf("collateral = %s", v.Collateral)
	}
	if v.Debt.Cmp(bigFromString(t, "1000000000000000000000")) != 0 {
		t.Fatalf("debt = %s", v.Debt)
	}
	if v.LastUpdate != f.now {
		t.Fatalf("lastUpdate = %d, want %d", v.LastUpdate, f.now)
	}

	g, _ := f.engine.Store().Global()
	if g.ActiveVaults != 1 {
		t.Fatalf("active vaults = %d", g.ActiveVaults)
	}
	if g.TotalProtocolDebt.Cmp(v.Debt) != 0 {
		t.Fatalf("protocol debt = %s", g.TotalProtocolDebt)
	}
	if g.TotalDebt[testAsset].Cmp(v.Debt) != 0 || g.TotalCollateral[testAsset].Cmp(v.Collateral) != 0 {
		t.Fatalf("per-asset aggregates wrong")
	}

	if !f.engine.Index().Contains(testAsset, f.alice) {
		t.Fatalf("vault missing from sorted index")
	}
	if got := f.bank.balance(testAsset, f.module); got.Cmp(v.Collateral) != 0 {
		t.Fatalf("module collateral = %s", got)
	}
	if got := f.bank.balance(stableSym, f.alice); got.Cmp(v.Debt) != 0 {
		t.Fatalf("minted stable = %s", got)
	}
}

func TestCreateVaultValidation(t *testing.T) {
	f := newEngineFixture(t)
	coll := bigFromString(t, "800000000000000000000")
	f.fund(testAsset, f.alice, new(big.Int).Mul(coll, big.NewInt(10)))

	// CR below MCR: 100 coll * 6 * 100 / 1000 = 60% < 110%.
	err := f.engine.CreateVault(f.alice, testAsset, bigFromString(t, "100000000000000000000"), bigFromString(t, "1000000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrBelowMCR) {
		t.Fatalf("below-MCR error = %v", err)
	}

	// Debt below the collateral minimum.
	err = f.engine.CreateVault(f.alice, testAsset, coll, bigFromString(t, "50000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrBelowMinDebt) {
		t.Fatalf("min-debt error = %v", err)
	}

	// MCR outside the configured range.
	err = f.engine.CreateVault(f.alice, testAsset, coll, bigFromString(t, "1000000000000000000000"), bigFromString(t, "105000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrInvalidMCR) {
		t.Fatalf("invalid-MCR error = %v", err)
	}

	// Unknown collateral.
	err = f.engine.CreateVault(f.alice, "NOPE", coll, bigFromString(t, "1000000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrInvalidCollateral) {
		t.Fatalf("unknown collateral error = %v", err)
	}

	// Duplicate vault.
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")
	f.fund(testAsset, f.alice, coll)
	err = f.engine.CreateVault(f.alice, testAsset, coll, bigFromString(t, "1000000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrVaultExists) {
		t.Fatalf("duplicate error = %v", err)
	}

	// Inactive collateral.
	if err := f.engine.SetIsActive(f.owner, testAsset, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	f.fund(testAsset, f.bob, coll)
	err = f.engine.CreateVault(f.bob, testAsset, coll, bigFromString(t, "1000000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrInactiveCollateral) {
		t.Fatalf("inactive error = %v", err)
	}
}

func TestCreateVaultMintCap(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.SetCollateralParameters(f.owner, testAsset,
		wadInt(t, "110000000000000000000"),
		wadInt(t, "200000000000000000000"),
		wadInt(t, "1000000000000000000"),
		wadInt(t, "10000000000000000"),
		wadInt(t, "100000000000000000"),
		wadInt(t, "100000000000000000000"),
		wadInt(t, "1500000000000000000000"), // cap 1500
		wadInt(t, "25000000000000000"),
	); err != nil {
		t.Fatalf("set params: %v", err)
	}
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	coll := bigFromString(t, "800000000000000000000")
	f.fund(testAsset, f.bob, coll)
	err := f.engine.CreateVault(f.bob, testAsset, coll, bigFromString(t, "1000000000000000000000"), bigFromString(t, "110000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrMintCapExceeded) {
		t.Fatalf("mint cap error = %v", err)
	}
}

func TestAdjustVault(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	// Both directions of the same pair set is rejected.
	one := bigFromString(t, "1000000000000000000")
	err := f.engine.AdjustVault(f.alice, testAsset, one, one, nil, nil, f.none, f.none)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("conflicting deltas error = %v", err)
	}
	// All-zero adjustment is rejected.
	err = f.engine.AdjustVault(f.alice, testAsset, nil, nil, nil, nil, f.none, f.none)
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero adjust error = %v", err)
	}

	// Add collateral and draw more debt.
	addColl := bigFromString(t, "200000000000000000000")
	addDebt := bigFromString(t, "500000000000000000000")
	f.fund(testAsset, f.alice, addColl)
	if err := f.engine.AdjustVault(f.alice, testAsset, addColl, nil, addDebt, nil, f.none, f.none); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	v := f.vault(t, f.alice)
	if v.Collateral.Cmp(bigFromString(t, "1000000000000000000000")) != 0 {
		t.Fatalf("collateral = %s", v.Collateral)
	}
	if v.Debt.Cmp(bigFromString(t, "1500000000000000000000")) != 0 {
		t.Fatalf("debt = %s", v.Debt)
	}
	if got := f.bank.balance(stableSym, f.alice); got.Cmp(v.Debt) != 0 {
		t.Fatalf("stable balance = %s", got)
	}

	// Repay debt and withdraw collateral.
	repay := bigFromString(t, "500000000000000000000")
	withdraw := bigFromString(t, "100000000000000000000")
	if err := f.engine.AdjustVault(f.alice, testAsset, nil, withdraw, nil, repay, f.none, f.none); err != nil {
		t.Fatalf("unwind adjust: %v", err)
	}
	v = f.vault(t, f.alice)
	if v.Collateral.Cmp(bigFromString(t, "900000000000000000000")) != 0 || v.Debt.Cmp(bigFromString(t, "1000000000000000000000")) != 0 {
		t.Fatalf("after unwind: coll %s debt %s", v.Collateral, v.Debt)
	}

	g, _ := f.engine.Store().Global()
	if g.TotalDebt[testAsset].Cmp(v.Debt) != 0 || g.TotalCollateral[testAsset].Cmp(v.Collateral) != 0 {
		t.Fatalf("aggregates out of sync")
	}

	// Withdrawing into undercollateralisation fails.
	err = f.engine.AdjustVault(f.alice, testAsset, nil, bigFromString(t, "880000000000000000000"), nil, nil, f.none, f.none)
	if !errors.Is(err, ErrBelowMCR) {
		t.Fatalf("undercollateralised withdraw error = %v", err)
	}
}

func TestCloseVault(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	if err := f.engine.CloseVault(f.alice, testAsset); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.vault(t, f.alice) != nil {
		t.Fatalf("vault record survived close")
	}
	if f.engine.Index().Contains(testAsset, f.alice) {
		t.Fatalf("index entry survived close")
	}
	g, _ := f.engine.Store().Global()
	if g.ActiveVaults != 0 || g.TotalProtocolDebt.Sign() != 0 {
		t.Fatalf("aggregates not zeroed: vaults %d debt %s", g.ActiveVaults, g.TotalProtocolDebt)
	}
	if got := f.bank.balance(testAsset, f.alice); got.Cmp(bigFromString(t, "800000000000000000000")) != 0 {
		t.Fatalf("collateral not returned: %s", got)
	}
	if got := f.bank.balance(stableSym, f.alice); got.Sign() != 0 {
		t.Fatalf("stable not burned: %s", got)
	}

	if err := f.engine.CloseVault(f.alice, testAsset); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("double close error = %v", err)
	}
}

func TestTransferVaultOwnership(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")
	before := f.vault(t, f.alice)

	if err := f.engine.TransferVaultOwnership(f.alice, testAsset, f.alice, f.none, f.none); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("self transfer error = %v", err)
	}
	if err := f.engine.TransferVaultOwnership(f.alice, testAsset, f.bob, f.none, f.none); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if f.vault(t, f.alice) != nil {
		t.Fatalf("source record survived transfer")
	}
	moved := f.vault(t, f.bob)
	if moved == nil || moved.Collateral.Cmp(before.Collateral) != 0 || moved.Debt.Cmp(before.Debt) != 0 {
		t.Fatalf("record not moved verbatim")
	}
	if moved.LastUpdate != before.LastUpdate {
		t.Fatalf("interest anchor changed: %d != %d", moved.LastUpdate, before.LastUpdate)
	}
	if f.engine.Index().Contains(testAsset, f.alice) || !f.engine.Index().Contains(testAsset, f.bob) {
		t.Fatalf("index not updated")
	}

	// Recipient with an existing vault rejects the transfer.
	f.create(t, f.carol, "800000000000000000000", "1000000000000000000000", "110000000000000000000")
	if err := f.engine.TransferVaultOwnership(f.bob, testAsset, f.carol, f.none, f.none); !errors.Is(err, ErrVaultExists) {
		t.Fatalf("occupied recipient error = %v", err)
	}
}

func TestInterestAccrualIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	// MCR at the top of the range pins the rate to the 1% base fee.
	f.create(t, f.alice, "10000000000000000000000", "3000000000000000000000", "200000000000000000000")

	f.now += SecondsInYear
	if err := f.engine.UpdateVaultInterest(testAsset, f.alice); err != nil {
		t.Fatalf("update interest: %v", err)
	}
	v := f.vault(t, f.alice)
	// 3000 * e^0.01 is just above 3030.15; simple interest gives 3030 flat.
	low := bigFromString(t, "3030000000000000000000")
	high := bigFromString(t, "3030200000000000000000")
	if v.Debt.Cmp(low) < 0 || v.Debt.Cmp(high) > 0 {
		t.Fatalf("compounded debt out of range: %s", v.Debt)
	}

	g, _ := f.engine.Store().Global()
	accrued := new(big.Int).Sub(v.Debt, bigFromString(t, "3000000000000000000000"))
	if g.TotalAccruedDebt.Cmp(accrued) != 0 {
		t.Fatalf("accrued tracker = %s, want %s", g.TotalAccruedDebt, accrued)
	}
	if g.TotalProtocolDebt.Cmp(v.Debt) != 0 {
		t.Fatalf("protocol debt = %s, want %s", g.TotalProtocolDebt, v.Debt)
	}

	// A second update at the same timestamp is a no-op.
	if err := f.engine.UpdateVaultInterest(testAsset, f.alice); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	again := f.vault(t, f.alice)
	if again.Debt.Cmp(v.Debt) != 0 {
		t.Fatalf("second update changed debt: %s -> %s", v.Debt, again.Debt)
	}
}

func TestInterestPathIndependence(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "1000000000000000000000", "3000000000000000000000", "120000000000000000000")
	f.create(t, f.bob, "1000000000000000000000", "3000000000000000000000", "120000000000000000000")

	step := bigFromString(t, "25000000000000000000")
	interval := uint64(90 * 24 * 3600)
	for i := 0; i < 4; i++ {
		f.now += interval
		f.fund(testAsset, f.alice, step)
		if err := f.engine.AdjustVault(f.alice, testAsset, step, nil, nil, nil, f.none, f.none); err != nil {
			t.Fatalf("alice adjust %d: %v", i, err)
		}
	}
	total := bigFromString(t, "100000000000000000000")
	f.fund(testAsset, f.bob, total)
	if err := f.engine.AdjustVault(f.bob, testAsset, total, nil, nil, nil, f.none, f.none); err != nil {
		t.Fatalf("bob adjust: %v", err)
	}

	alice := f.vault(t, f.alice)
	bob := f.vault(t, f.bob)
	if alice.Collateral.Cmp(bob.Collateral) != 0 {
		t.Fatalf("collateral mismatch: %s != %s", alice.Collateral, bob.Collateral)
	}
	diff := new(big.Int).Sub(alice.Debt, bob.Debt)
	diff.Abs(diff)
	// Interest accrues on debt only, so splitting the collateral adds must
	// not change the debt beyond fixed-point rounding.
	if diff.Cmp(bigFromString(t, "1000000000000")) > 0 {
		t.Fatalf("debt diverged across paths: %s vs %s (diff %s)", alice.Debt, bob.Debt, diff)
	}
}

func TestMintVaultsInterest(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "10000000000000000000000", "3000000000000000000000", "200000000000000000000")

	if err := f.engine.MintVaultsInterest(); !errors.Is(err, ErrNothingToMint) {
		t.Fatalf("premature mint error = %v", err)
	}

	r1 := testAddr(0x51)
	r2 := testAddr(0x52)
	if err := f.engine.SetMintRecipients(f.owner, []MintRecipient{
		{Recipient: r1, Bps: 4000},
		{Recipient: r2, Bps: 5000},
	}); err != nil {
		t.Fatalf("set recipients: %v", err)
	}

	f.now += SecondsInYear
	if err := f.engine.UpdateVaultInterest(testAsset, f.alice); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	g, _ := f.engine.Store().Global()
	delta := new(big.Int).Sub(g.TotalAccruedDebt, g.LastRecordedAccruedDebt)
	if delta.Sign() <= 0 {
		t.Fatalf("no interest accrued")
	}

	if err := f.engine.MintVaultsInterest(); err != nil {
		t.Fatalf("mint: %v", err)
	}
	share1 := new(big.Int).Quo(new(big.Int).Mul(delta, big.NewInt(4000)), big.NewInt(10000))
	share2 := new(big.Int).Quo(new(big.Int).Mul(delta, big.NewInt(5000)), big.NewInt(10000))
	if got := f.bank.balance(stableSym, r1); got.Cmp(share1) != 0 {
		t.Fatalf("recipient 1 = %s, want %s", got, share1)
	}
	if got := f.bank.balance(stableSym, r2); got.Cmp(share2) != 0 {
		t.Fatalf("recipient 2 = %s, want %s", got, share2)
	}

	// The 10% shortfall stays unminted without a default recipient.
	g, _ = f.engine.Store().Global()
	if g.LastRecordedAccruedDebt.Cmp(g.TotalAccruedDebt) != 0 {
		t.Fatalf("accrual anchor not advanced")
	}
	if err := f.engine.MintVaultsInterest(); !errors.Is(err, ErrNothingToMint) {
		t.Fatalf("repeat mint error = %v", err)
	}

	// With a default recipient the next round's shortfall is delivered.
	sink := testAddr(0x53)
	if err := f.engine.SetDefaultInterestRecipient(f.owner, sink); err != nil {
		t.Fatalf("set default recipient: %v", err)
	}
	f.now += SecondsInYear
	if err := f.engine.UpdateVaultInterest(testAsset, f.alice); err != nil {
		t.Fatalf("accrue again: %v", err)
	}
	g, _ = f.engine.Store().Global()
	delta = new(big.Int).Sub(g.TotalAccruedDebt, g.LastRecordedAccruedDebt)
	if err := f.engine.MintVaultsInterest(); err != nil {
		t.Fatalf("mint again: %v", err)
	}
	share1 = new(big.Int).Quo(new(big.Int).Mul(delta, big.NewInt(4000)), big.NewInt(10000))
	share2 = new(big.Int).Quo(new(big.Int).Mul(delta, big.NewInt(5000)), big.NewInt(10000))
	wantSink := new(big.Int).Sub(delta, share1)
	wantSink.Sub(wantSink, share2)
	if got := f.bank.balance(stableSym, sink); got.Cmp(wantSink) != 0 {
		t.Fatalf("default recipient = %s, want %s", got, wantSink)
	}
}

func TestAdminGating(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.SetIsActive(f.alice, testAsset, false); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("non-owner setter error = %v", err)
	}
	if err := f.engine.SetRedemptionFee(f.alice, big.NewInt(1)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("non-owner fee error = %v", err)
	}
	if err := f.engine.Initialize(f.owner); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("re-initialize error = %v", err)
	}

	// Bounds enforcement.
	if err := f.engine.SetRedemptionFee(f.owner, wadInt(t, "200000000000000000")); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("fee above 10%% error = %v", err)
	}
	if err := f.engine.SetLiquidationPenalty(f.owner, testAsset, wadInt(t, "400000000000000000")); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("penalty above 30%% error = %v", err)
	}
	if err := f.engine.SetMinRange(f.owner, testAsset, wadInt(t, "90000000000000000000")); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("min range below 100%% error = %v", err)
	}
	if err := f.engine.SetMintRecipients(f.owner, []MintRecipient{{Recipient: f.alice, Bps: 10_001}}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("bps overflow error = %v", err)
	}
}

func TestOracleFailureAborts(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	f.oracle.err = errors.New("feed down")
	one := bigFromString(t, "1000000000000000000")
	f.fund(testAsset, f.alice, one)
	err := f.engine.AdjustVault(f.alice, testAsset, one, nil, nil, nil, f.none, f.none)
	if !errors.Is(err, ErrOracleFailure) {
		t.Fatalf("oracle failure error = %v", err)
	}
	// The failed operation left the vault untouched.
	v := f.vault(t, f.alice)
	if v.Collateral.Cmp(bigFromString(t, "800000000000000000000")) != 0 {
		t.Fatalf("vault mutated despite oracle failure: %s", v.Collateral)
	}
}

func TestNotInitialized(t *testing.T) {
	engine := NewEngine(testAddr(0xA0), testAddr(0xA1))
	engine.SetState(newMockEngineState())
	engine.SetTokenBank(newMockBank())
	engine.SetOracle(&mockOracle{prices: map[string]*big.Int{}})
	engine.SetStableToken(stableSym)
	engine.SetNowFunc(func() uint64 { return 1 })

	err := engine.CreateVault(testAddr(1), testAsset, big.NewInt(1), big.NewInt(1), big.NewInt(1), crypto.Address{}, crypto.Address{})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("uninitialised error = %v", err)
	}
}
