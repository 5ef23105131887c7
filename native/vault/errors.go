package vault

import "errors"

var (
	ErrNilState           = errors.New("vault engine: state not configured")
	ErrNotInitialized     = errors.New("vault engine: engine not initialised")
	ErrNotAuthorized      = errors.New("vault engine: caller is not authorised")
	ErrVaultNotFound      = errors.New("vault engine: vault not found")
	ErrVaultExists        = errors.New("vault engine: vault already exists")
	ErrBelowMCR           = errors.New("vault engine: collateral ratio below vault MCR")
	ErrBelowMinDebt       = errors.New("vault engine: debt below collateral minimum net debt")
	ErrMintCapExceeded    = errors.New("vault engine: collateral mint cap exceeded")
	ErrInvalidMCR         = errors.New("vault engine: MCR outside collateral range")
	ErrInvalidCollateral  = errors.New("vault engine: unknown collateral")
	ErrInactiveCollateral = errors.New("vault engine: collateral not active")
	ErrInvalidParameter   = errors.New("vault engine: invalid parameter")
	ErrInvalidAmount      = errors.New("vault engine: amount must be positive")
	ErrZeroAmount         = errors.New("vault engine: zero amount")
	ErrNoVaultsToRedeem   = errors.New("vault engine: no vaults to redeem against")
	ErrStabilityPoolEmpty = errors.New("vault engine: stability pool has no deposits")
	ErrNotLiquidatable    = errors.New("vault engine: vault not eligible for liquidation")
	ErrOracleFailure      = errors.New("vault engine: oracle price unavailable")
	ErrTokenTransfer      = errors.New("vault engine: token transfer failed")
	ErrNothingToMint      = errors.New("vault engine: no accrued interest to mint")
	ErrSelfTransfer       = errors.New("vault engine: cannot transfer vault to self")
	ErrCollateralDrained  = errors.New("vault engine: redemption exceeds vault collateral")
)
