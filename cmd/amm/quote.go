package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/config"
	"cpamm/internal/dispatch"
	"cpamm/internal/ledger"
)

type swapQuote struct {
	IsXToY    bool   `json:"is_x_to_y"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
	Fee       uint64 `json:"fee"`
}

type lpQuote struct {
	LPAmount  uint64 `json:"lp_amount"`
	DepositX  uint64 `json:"deposit_x"`
	DepositY  uint64 `json:"deposit_y"`
	WithdrawX uint64 `json:"withdraw_x"`
	WithdrawY uint64 `json:"withdraw_y"`
}

type poolQuote struct {
	PoolID    uint16     `json:"pool_id"`
	MintX     string     `json:"mint_x"`
	MintY     string     `json:"mint_y"`
	MintLP    string     `json:"mint_lp"`
	FeeBips   uint16     `json:"fee_bips"`
	Locked    bool       `json:"locked"`
	ReserveX  uint64     `json:"reserve_x"`
	ReserveY  uint64     `json:"reserve_y"`
	LPSupply  uint64     `json:"lp_supply"`
	K         string     `json:"k"`
	SpotPrice *uint64    `json:"spot_price,omitempty"`
	Swap      *swapQuote `json:"swap,omitempty"`
	Liquidity *lpQuote   `json:"liquidity,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	isXToY, err := cfg.IsXToY()
	if err != nil {
		return err
	}

	store := &dispatch.FileStateStore{Path: cfg.StateFile}
	snap, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot at %s, run replay first", cfg.StateFile)
	}

	l := ledger.Restore(snap.Ledger)
	d := dispatch.NewDispatcher(l, l, logger)
	d.Restore(snap.Registry)

	ids := cfg.Pools
	if len(ids) == 0 {
		for _, pool := range d.Pools() {
			ids = append(ids, pool.PoolID)
		}
	}

	logger.Debug("quote",
		zap.String("state_file", cfg.StateFile),
		zap.Uint64("last_seq", snap.LastProcessedSeq),
		zap.Int("pools", len(ids)),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, id := range ids {
		pool, ok := d.Pool(id)
		if !ok {
			return fmt.Errorf("%w: %d", dispatch.ErrPoolNotFound, id)
		}
		if err := enc.Encode(quotePool(ctx, d, pool, isXToY, cfg)); err != nil {
			return err
		}
	}
	return nil
}

// quotePool reports per-pool failures in the output rather than aborting, so
// one empty pool does not hide the others.
func quotePool(ctx context.Context, d *dispatch.Dispatcher, pool amm.Pool, isXToY bool, cfg config.QuoteConfig) poolQuote {
	out := poolQuote{
		PoolID:  pool.PoolID,
		MintX:   pool.MintX.Hex(),
		MintY:   pool.MintY.Hex(),
		MintLP:  pool.MintLP.Hex(),
		FeeBips: pool.FeeBips,
		Locked:  pool.Locked,
	}

	res, cp, err := d.Quote(ctx, pool.PoolID, isXToY, 0)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.ReserveX = cp.ReserveX
	out.ReserveY = cp.ReserveY
	out.LPSupply = cp.LPSupply
	out.K = cp.K().ToBig().String()
	if price, err := cp.SpotPrice(); err == nil {
		out.SpotPrice = &price
	}

	if cfg.AmountIn > 0 {
		res, _, err = d.Quote(ctx, pool.PoolID, isXToY, cfg.AmountIn)
		if err != nil {
			out.Error = fmt.Sprintf("swap: %v", err)
			return out
		}
		out.Swap = &swapQuote{IsXToY: isXToY, AmountIn: res.Deposit, AmountOut: res.Withdraw, Fee: res.Fee}
	}

	if cfg.LPAmount > 0 && cp.LPSupply > 0 {
		dep, err := cp.DepositAmounts(cfg.LPAmount)
		if err != nil {
			out.Error = fmt.Sprintf("deposit: %v", err)
			return out
		}
		wd, err := cp.WithdrawAmounts(min(cfg.LPAmount, cp.LPSupply))
		if err != nil {
			out.Error = fmt.Sprintf("withdraw: %v", err)
			return out
		}
		out.Liquidity = &lpQuote{
			LPAmount:  cfg.LPAmount,
			DepositX:  dep.X,
			DepositY:  dep.Y,
			WithdrawX: wd.X,
			WithdrawY: wd.Y,
		}
	}
	return out
}
