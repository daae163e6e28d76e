package synth

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"synthvault/core/events"
	nativecommon "synthvault/native/common"
)

const moduleName = "synth"

// Engine orchestrates the collateral and debt ledgers behind the public
// operation surface. Every mutating operation runs as a single indivisible
// unit: ledger writes happen first, external token calls are requested only
// after the invariant checks pass, and any failure reverts the whole
// operation through the state snapshot.
type Engine struct {
	state         engineState
	registry      *Registry
	oracle        PriceOracle
	debtToken     DebtToken
	tokens        map[common.Address]Collateral
	moduleAddress common.Address
	params        RiskParameters
	emitter       events.Emitter
	audit         *AuditTrail
	pauses        nativecommon.PauseView
	inFlight      atomic.Bool
	// opMu holds the write side for the full span of a mutating operation,
	// including commit and revert. Queries take the read side so they never
	// observe a ledger write that may still be reverted.
	opMu sync.RWMutex
}

// NewEngine constructs an engine bound to the asset registry and risk
// parameters. State, oracle, and token contracts are wired through setters
// before the first operation.
func NewEngine(moduleAddr common.Address, registry *Registry, params RiskParameters) *Engine {
	if params.LiquidationThresholdBps == 0 {
		params = DefaultRiskParameters()
	}
	return &Engine{
		registry:      registry,
		moduleAddress: moduleAddr,
		params:        params,
		tokens:        make(map[common.Address]Collateral),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price oracle adapter. The engine treats every returned
// price as authoritative; staleness checks belong to the adapter.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetDebtToken wires the synthetic debt token contract.
func (e *Engine) SetDebtToken(token DebtToken) { e.debtToken = token }

// SetCollateralToken wires the transfer surface for a registered asset.
func (e *Engine) SetCollateralToken(asset common.Address, token Collateral) {
	if e == nil || token == nil {
		return
	}
	e.tokens[asset] = token
}

// SetEmitter configures the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) { e.emitter = emitter }

// SetAuditTrail configures the append-only audit record store.
func (e *Engine) SetAuditTrail(trail *AuditTrail) { e.audit = trail }

// SetPauses wires the administrative pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// ModuleAddress returns the identity the engine holds custodied assets under.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

// MinimumHealthFactor is the wad baseline below which a position is
// undercollateralized.
func MinimumHealthFactor() *big.Int { return new(big.Int).Set(wad) }

// begin enforces the pause guard and the operation-in-flight guard. A
// re-entrant call from an external collaborator lands here while the flag is
// still set and is rejected instead of observing mid-operation state.
func (e *Engine) begin() error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) end() { e.inFlight.Store(false) }

// operation accumulates ledger writes, deferred external calls, and the
// events to publish once the whole unit commits.
type operation struct {
	engine   *Engine
	snapshot int
	calls    []func() error
	events   []events.Event
	records  []*AuditRecord
}

func (e *Engine) newOperation() *operation {
	return &operation{engine: e, snapshot: e.state.Snapshot()}
}

func (op *operation) external(call func() error) { op.calls = append(op.calls, call) }

func (op *operation) emit(ev events.Event) { op.events = append(op.events, ev) }

func (op *operation) record(rec *AuditRecord) { op.records = append(op.records, rec) }

func (op *operation) revert() {
	if err := op.engine.state.RevertToSnapshot(op.snapshot); err != nil {
		panic(fmt.Sprintf("synth engine: snapshot revert failed: %v", err))
	}
}

// commit requests the deferred external side effects and finalises the
// ledger. An external failure reverts every ledger write of the operation.
func (op *operation) commit() error {
	for _, call := range op.calls {
		if err := call(); err != nil {
			op.revert()
			return err
		}
	}
	op.engine.state.Commit()
	if op.engine.emitter != nil {
		for _, ev := range op.events {
			op.engine.emitter.Emit(ev)
		}
	}
	if op.engine.audit != nil {
		for _, rec := range op.records {
			// The ledger change is already committed; a failed append is
			// reported out of band instead of failing the operation.
			if err := op.engine.audit.Append(rec); err != nil {
				slog.Error("synth engine: audit append failed", "kind", rec.Kind, "error", err)
			}
		}
	}
	return nil
}

// run executes fn inside the operation boundary: guard, snapshot, revert on
// failure, commit on success.
func (e *Engine) run(fn func(op *operation) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	e.opMu.Lock()
	defer e.opMu.Unlock()

	op := e.newOperation()
	if err := fn(op); err != nil {
		op.revert()
		return err
	}
	return op.commit()
}

// DepositCollateral locks collateral for the account. Deposit alone cannot
// worsen solvency, so it is the one mutating operation without a closing
// health-factor assertion.
func (e *Engine) DepositCollateral(user, asset common.Address, amount *big.Int) error {
	return e.run(func(op *operation) error {
		return e.depositCollateral(op, user, asset, amount)
	})
}

// MintDebt mints synthetic debt against the account's collateral. The debt
// ledger is updated first; the health-factor check authorizes the whole
// action and reverts it when the position would become undercollateralized.
func (e *Engine) MintDebt(user common.Address, amount *big.Int) error {
	return e.run(func(op *operation) error {
		if err := e.mintDebt(op, user, amount); err != nil {
			return err
		}
		return e.requireHealthy(user, ErrHealthCheckFailed)
	})
}

// DepositAndMint performs deposit then mint with a single health-factor check
// at the end.
func (e *Engine) DepositAndMint(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	return e.run(func(op *operation) error {
		if err := e.depositCollateral(op, user, asset, collateralAmount); err != nil {
			return err
		}
		if err := e.mintDebt(op, user, debtAmount); err != nil {
			return err
		}
		return e.requireHealthy(user, ErrHealthCheckFailed)
	})
}

// RedeemCollateral releases collateral back to the account while ensuring the
// resulting position remains healthy.
func (e *Engine) RedeemCollateral(user, asset common.Address, amount *big.Int) error {
	return e.run(func(op *operation) error {
		if err := e.redeemCollateral(op, user, user, asset, amount); err != nil {
			return err
		}
		return e.requireHealthy(user, ErrHealthCheckFailed)
	})
}

// BurnDebt repays synthetic debt from the account's own token balance.
func (e *Engine) BurnDebt(user common.Address, amount *big.Int) error {
	return e.run(func(op *operation) error {
		if err := e.burnDebt(op, user, user, amount); err != nil {
			return err
		}
		return e.requireHealthy(user, ErrHealthCheckFailed)
	})
}

// RedeemAndBurn burns debt before releasing collateral; redeeming first could
// transiently fail the closing health-factor check.
func (e *Engine) RedeemAndBurn(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	return e.run(func(op *operation) error {
		if err := e.burnDebt(op, user, user, debtAmount); err != nil {
			return err
		}
		if err := e.redeemCollateral(op, user, user, asset, collateralAmount); err != nil {
			return err
		}
		return e.requireHealthy(user, ErrHealthCheckFailed)
	})
}

// Liquidate lets a third party repay part of an undercollateralized target's
// debt in exchange for the equivalent collateral plus the liquidation bonus.
// debtToCover is denominated in wad USD and may cover any part of the debt up
// to the full amount.
func (e *Engine) Liquidate(liquidator, target, asset common.Address, debtToCover *big.Int) (*big.Int, error) {
	var seized *big.Int
	err := e.run(func(op *operation) error {
		if debtToCover == nil || debtToCover.Sign() <= 0 {
			return ErrInvalidAmount
		}
		preHealth, err := e.accountHealthFactor(target)
		if err != nil {
			return err
		}
		if preHealth.Cmp(wad) >= 0 {
			return ErrTargetHealthy
		}

		price, err := e.assetPriceWad(asset)
		if err != nil {
			return err
		}
		quoted := tokenAmountFromUsd(price, debtToCover)
		seize := new(big.Int).Add(quoted, bonusAmount(quoted, e.params.LiquidationBonusBps))

		if err := e.redeemCollateral(op, target, liquidator, asset, seize); err != nil {
			return err
		}
		if err := e.burnDebt(op, target, liquidator, debtToCover); err != nil {
			return err
		}

		postHealth, err := e.accountHealthFactor(target)
		if err != nil {
			return err
		}
		if postHealth.Cmp(preHealth) <= 0 {
			return ErrHealthNotImproved
		}
		if err := e.requireHealthy(liquidator, ErrLiquidatorUnhealthy); err != nil {
			return err
		}

		op.emit(events.PositionLiquidated{
			Liquidator:  liquidator,
			Target:      target,
			Asset:       asset,
			DebtCovered: new(big.Int).Set(debtToCover),
			Seized:      new(big.Int).Set(seize),
		})
		op.record(&AuditRecord{
			Kind:         AuditKindLiquidation,
			Account:      target,
			Counterparty: liquidator,
			Asset:        asset,
			Amount:       new(big.Int).Set(seize),
			DebtCovered:  new(big.Int).Set(debtToCover),
		})
		seized = seize
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seized, nil
}

func (e *Engine) depositCollateral(op *operation, user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !e.registry.Supports(asset) {
		return ErrUnsupportedAsset
	}
	token, ok := e.tokens[asset]
	if !ok {
		return ErrTokenNotWired
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	position.Collateral[asset] = new(big.Int).Add(position.CollateralOf(asset), amount)
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	transfer := new(big.Int).Set(amount)
	op.external(func() error {
		if err := token.TransferFrom(user, e.moduleAddress, transfer); err != nil {
			return fmt.Errorf("%w: %v", ErrCollateralTransfer, err)
		}
		return nil
	})
	op.emit(events.CollateralDeposited{Account: user, Asset: asset, Amount: transfer})
	op.record(&AuditRecord{Kind: AuditKindDeposit, Account: user, Counterparty: user, Asset: asset, Amount: transfer})
	return nil
}

func (e *Engine) mintDebt(op *operation, user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.debtToken == nil {
		return ErrNilDebtToken
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	position.DebtMinted = new(big.Int).Add(position.DebtMinted, amount)
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	minted := new(big.Int).Set(amount)
	op.external(func() error {
		if err := e.debtToken.Mint(user, minted); err != nil {
			return fmt.Errorf("%w: %v", ErrDebtTokenCall, err)
		}
		return nil
	})
	op.emit(events.DebtMinted{Account: user, Amount: minted})
	return nil
}

func (e *Engine) redeemCollateral(op *operation, from, to, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !e.registry.Supports(asset) {
		return ErrUnsupportedAsset
	}
	token, ok := e.tokens[asset]
	if !ok {
		return ErrTokenNotWired
	}

	position, err := e.ensurePosition(from)
	if err != nil {
		return err
	}
	balance := position.CollateralOf(asset)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	position.Collateral[asset] = new(big.Int).Sub(balance, amount)
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	transfer := new(big.Int).Set(amount)
	op.external(func() error {
		if err := token.Transfer(to, transfer); err != nil {
			return fmt.Errorf("%w: %v", ErrCollateralTransfer, err)
		}
		return nil
	})
	op.emit(events.CollateralRedeemed{From: from, To: to, Asset: asset, Amount: transfer})
	op.record(&AuditRecord{Kind: AuditKindRedemption, Account: from, Counterparty: to, Asset: asset, Amount: transfer})
	return nil
}

func (e *Engine) burnDebt(op *operation, onBehalfOf, payer common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.debtToken == nil {
		return ErrNilDebtToken
	}

	position, err := e.ensurePosition(onBehalfOf)
	if err != nil {
		return err
	}
	if position.DebtMinted.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	position.DebtMinted = new(big.Int).Sub(position.DebtMinted, amount)
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	burned := new(big.Int).Set(amount)
	op.external(func() error {
		if err := e.debtToken.TransferFrom(payer, e.moduleAddress, burned); err != nil {
			return fmt.Errorf("%w: %v", ErrDebtTokenCall, err)
		}
		if err := e.debtToken.Burn(burned); err != nil {
			return fmt.Errorf("%w: %v", ErrDebtTokenCall, err)
		}
		return nil
	})
	op.emit(events.DebtBurned{Account: onBehalfOf, Payer: payer, Amount: burned})
	return nil
}

func (e *Engine) requireHealthy(user common.Address, failure error) error {
	health, err := e.accountHealthFactor(user)
	if err != nil {
		return err
	}
	if health.Cmp(wad) < 0 {
		return failure
	}
	return nil
}

func (e *Engine) ensurePosition(addr common.Address) (*Position, error) {
	position, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Account: addr}
	}
	if position.Collateral == nil {
		position.Collateral = make(map[common.Address]*big.Int)
	}
	if position.DebtMinted == nil {
		position.DebtMinted = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) assetPriceWad(asset common.Address) (*big.Int, error) {
	if e.oracle == nil {
		return nil, ErrNilOracle
	}
	feed, ok := e.registry.Feed(asset)
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	quote, err := e.oracle.LatestPrice(feed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOraclePrice, err)
	}
	return scaleToWad(quote.Value, quote.Decimals)
}

func (e *Engine) accountCollateralValue(position *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.registry.Assets() {
		amount := position.CollateralOf(asset.Token)
		if amount.Sign() == 0 {
			continue
		}
		price, err := e.assetPriceWad(asset.Token)
		if err != nil {
			return nil, err
		}
		total.Add(total, usdValue(price, amount))
	}
	return total, nil
}

func (e *Engine) accountHealthFactor(addr common.Address) (*big.Int, error) {
	position, err := e.ensurePosition(addr)
	if err != nil {
		return nil, err
	}
	if position.DebtMinted.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	collateralUsd, err := e.accountCollateralValue(position)
	if err != nil {
		return nil, err
	}
	return healthFactor(collateralUsd, position.DebtMinted, e.params.LiquidationThresholdBps), nil
}

// --- Query surface (pure reads) ---

// UsdValue prices a token amount of a registered asset in wad USD.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()
	price, err := e.assetPriceWad(asset)
	if err != nil {
		return nil, err
	}
	return usdValue(price, amount), nil
}

// TokenAmountFromUsd converts a wad USD amount into units of the asset at the
// current oracle price.
func (e *Engine) TokenAmountFromUsd(asset common.Address, usdWad *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if usdWad == nil || usdWad.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()
	price, err := e.assetPriceWad(asset)
	if err != nil {
		return nil, err
	}
	return tokenAmountFromUsd(price, usdWad), nil
}

// AccountCollateralValue sums the wad USD value of every registered asset the
// account has deposited.
func (e *Engine) AccountCollateralValue(addr common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()
	position, err := e.ensurePosition(addr)
	if err != nil {
		return nil, err
	}
	return e.accountCollateralValue(position)
}

// HealthFactor reports the account's solvency ratio in wad. Debt-free
// accounts report the maximal-health sentinel.
func (e *Engine) HealthFactor(addr common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()
	return e.accountHealthFactor(addr)
}

// GetPosition returns a copy of the stored position. Unknown accounts return
// an empty, zero-valued position.
func (e *Engine) GetPosition(addr common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()
	position, err := e.ensurePosition(addr)
	if err != nil {
		return nil, err
	}
	return position.Clone(), nil
}
