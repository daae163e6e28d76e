package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "synthvault/native/common"
	"synthvault/native/synth"
	"synthvault/observability"
	"synthvault/oracle"
)

// Server exposes the engine's operation and query surface over HTTP.
type Server struct {
	engine  *synth.Engine
	feed    *oracle.StaticFeed
	logger  *slog.Logger
	metrics *observability.EngineMetrics
}

// NewServer wires the HTTP surface to the engine. feed may be nil when price
// administration is handled elsewhere.
func NewServer(engine *synth.Engine, feed *oracle.StaticFeed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		feed:    feed,
		logger:  logger,
		metrics: observability.Metrics(),
	}
}

// Router assembles the chi routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/position/{account}", s.handlePosition)
		r.Get("/health/{account}", s.handleHealth)
		r.Get("/value/{asset}", s.handleUsdValue)
		r.Get("/quote/{asset}", s.handleTokenAmount)

		r.Post("/deposit", s.handleDeposit)
		r.Post("/mint", s.handleMint)
		r.Post("/deposit-and-mint", s.handleDepositAndMint)
		r.Post("/redeem", s.handleRedeem)
		r.Post("/burn", s.handleBurn)
		r.Post("/redeem-and-burn", s.handleRedeemAndBurn)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/oracle/price", s.handleSetPrice)
	})
	return r
}

type positionResponse struct {
	Account      string            `json:"account"`
	Collateral   map[string]string `json:"collateral"`
	Debt         string            `json:"debt"`
	HealthFactor string            `json:"healthFactor"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	position, err := s.engine.GetPosition(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	health, err := s.engine.HealthFactor(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := positionResponse{
		Account:      strings.ToLower(account.Hex()),
		Collateral:   make(map[string]string, len(position.Collateral)),
		Debt:         position.DebtMinted.String(),
		HealthFactor: health.String(),
	}
	for asset, amount := range position.Collateral {
		resp.Collateral[strings.ToLower(asset.Hex())] = amount.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Account      string `json:"account"`
	HealthFactor string `json:"healthFactor"`
	Liquidatable bool   `json:"liquidatable"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	health, err := s.engine.HealthFactor(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Account:      strings.ToLower(account.Hex()),
		HealthFactor: health.String(),
		Liquidatable: health.Cmp(synth.MinimumHealthFactor()) < 0,
	})
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAccount(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"usd": value.String()})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAccount(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usd, err := parseAmount(r.URL.Query().Get("usd"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.engine.TokenAmountFromUsd(asset, usd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"tokenAmount": amount.String()})
}

type operationRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "deposit", func(req operationRequest) error {
		account, asset, amount, err := req.accountAssetAmount()
		if err != nil {
			return err
		}
		return s.engine.DepositCollateral(account, asset, amount)
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "mint", func(req operationRequest) error {
		account, err := parseAccount(req.Account)
		if err != nil {
			return err
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return err
		}
		return s.engine.MintDebt(account, amount)
	})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "deposit_and_mint", func(req operationRequest) error {
		account, err := parseAccount(req.Account)
		if err != nil {
			return err
		}
		asset, err := parseAccount(req.Asset)
		if err != nil {
			return err
		}
		collateral, err := parseAmount(req.CollateralAmount)
		if err != nil {
			return err
		}
		debt, err := parseAmount(req.DebtAmount)
		if err != nil {
			return err
		}
		return s.engine.DepositAndMint(account, asset, collateral, debt)
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "redeem", func(req operationRequest) error {
		account, asset, amount, err := req.accountAssetAmount()
		if err != nil {
			return err
		}
		return s.engine.RedeemCollateral(account, asset, amount)
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "burn", func(req operationRequest) error {
		account, err := parseAccount(req.Account)
		if err != nil {
			return err
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return err
		}
		return s.engine.BurnDebt(account, amount)
	})
}

func (s *Server) handleRedeemAndBurn(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "redeem_and_burn", func(req operationRequest) error {
		account, err := parseAccount(req.Account)
		if err != nil {
			return err
		}
		asset, err := parseAccount(req.Asset)
		if err != nil {
			return err
		}
		collateral, err := parseAmount(req.CollateralAmount)
		if err != nil {
			return err
		}
		debt, err := parseAmount(req.DebtAmount)
		if err != nil {
			return err
		}
		return s.engine.RedeemAndBurn(account, asset, collateral, debt)
	})
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	liquidator, err := parseAccount(req.Liquidator)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := parseAccount(req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseAccount(req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	debtToCover, err := parseAmount(req.DebtToCover)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seized, err := s.engine.Liquidate(liquidator, target, asset, debtToCover)
	s.metrics.ObserveOperation("liquidate", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ObserveLiquidation()
	s.logger.Info("liquidation executed",
		"liquidator", strings.ToLower(liquidator.Hex()),
		"target", strings.ToLower(target.Hex()),
		"seized", seized.String(),
	)
	s.writeJSON(w, http.StatusOK, map[string]string{"seized": seized.String()})
}

type priceRequest struct {
	Feed  string `json:"feed"`
	Price string `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		s.writeError(w, r, errFeedNotConfigured)
		return
	}
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	feed, err := parseAccount(req.Feed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(req.Price), 10)
	if !ok {
		s.writeError(w, r, errBadRequest)
		return
	}
	if err := s.feed.SetPrice(feed, price); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, name string, fn func(operationRequest) error) {
	start := time.Now()
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	err := fn(req)
	s.metrics.ObserveOperation(name, start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (req operationRequest) accountAssetAmount() (common.Address, common.Address, *big.Int, error) {
	account, err := parseAccount(req.Account)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	asset, err := parseAccount(req.Asset)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return account, asset, amount, nil
}

var (
	errBadRequest        = errors.New("rpc: malformed request")
	errFeedNotConfigured = errors.New("rpc: price feed not configured")
)

func parseAccount(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errBadRequest
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, errBadRequest
	}
	return amount, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, synth.ErrInvalidAmount),
		errors.Is(err, synth.ErrUnsupportedAsset),
		errors.Is(err, oracle.ErrInvalidPrice):
		status = http.StatusBadRequest
	case errors.Is(err, synth.ErrInsufficientCollateral),
		errors.Is(err, synth.ErrInsufficientDebt),
		errors.Is(err, synth.ErrHealthCheckFailed),
		errors.Is(err, synth.ErrTargetHealthy),
		errors.Is(err, synth.ErrHealthNotImproved),
		errors.Is(err, synth.ErrLiquidatorUnhealthy),
		errors.Is(err, synth.ErrCollateralTransfer),
		errors.Is(err, synth.ErrDebtTokenCall):
		status = http.StatusConflict
	case errors.Is(err, synth.ErrOraclePrice), errors.Is(err, oracle.ErrUnknownFeed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, synth.ErrReentrantCall):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
