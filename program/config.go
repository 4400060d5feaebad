package program

import (
	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
)

func (p *Program) initialize(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	var args InitializeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if err := a.need(3); err != nil {
		return err
	}
	configAddr, err := a.writable(0, "config")
	if err != nil {
		return err
	}
	admin, err := a.signer(1, "admin")
	if err != nil {
		return err
	}
	if err := a.program(2, solana.SystemProgramID); err != nil {
		return err
	}
	bump, err := p.derived(configAddr, "config", pda.SeedConfig)
	if err != nil {
		return err
	}

	if _, exists, err := p.record(tx, configAddr, "config"); err != nil {
		return err
	} else if exists {
		return market.New(market.CodeAlreadyInitialized, "config %s", configAddr)
	}
	if args.FeeBps > p.Policy.MaxFeeBps {
		return market.New(market.CodeInvalidFee, "fee_bps %d exceeds %d", args.FeeBps, p.Policy.MaxFeeBps)
	}

	cfg := &market.Config{Admin: admin, FeeBps: args.FeeBps, Bump: bump}
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	if err := hostErr(tx.CreateRecord(configAddr, p.ID, data), "config"); err != nil {
		return err
	}
	r.logf("Initialized config: admin=%s, fee_bps=%d, bump=%d", cfg.Admin, cfg.FeeBps, cfg.Bump)
	return r.emit(market.ConfigChanged{Admin: admin, FeeBps: cfg.FeeBps})
}

func (p *Program) closeConfig(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	if err := decodeArgs(raw, &struct{}{}); err != nil {
		return err
	}
	if err := a.need(3); err != nil {
		return err
	}
	configAddr, err := a.writable(0, "config")
	if err != nil {
		return err
	}
	admin, err := a.signer(1, "admin")
	if err != nil {
		return err
	}
	if err := a.program(2, solana.SystemProgramID); err != nil {
		return err
	}
	if _, err := p.derived(configAddr, "config", pda.SeedConfig); err != nil {
		return err
	}
	cfg, err := p.loadConfig(tx, configAddr)
	if err != nil {
		return err
	}
	if !cfg.Admin.Equals(admin) {
		return market.New(market.CodeUnauthorized, "%s is not the admin", admin)
	}
	if err := hostErr(tx.CloseRecord(configAddr, p.ID), "config"); err != nil {
		return err
	}
	r.logf("Closed config: admin=%s", admin)
	return r.emit(market.ConfigChanged{Admin: admin, FeeBps: cfg.FeeBps, Closed: true})
}
