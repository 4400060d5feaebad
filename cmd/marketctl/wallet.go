package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"promphub.io/market/market"
)

func newAirdropCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "airdrop <sol>",
		Short:   "Request SOL from a development node faucet",
		GroupID: "wallet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := market.ParseSOL(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			balance, err := cl.Airdrop(context.Background(), amount)
			if err != nil {
				return err
			}
			return c.printFields("Address", cl.Address().String(), "Balance", sol(balance), "Lamports", balance)
		},
	}
}

func newBalanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "balance [address]",
		Short:   "Show the SOL balance of the wallet or an address",
		GroupID: "wallet",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var addr solana.PublicKey
			if len(args) == 1 {
				var err error
				if addr, err = solana.PublicKeyFromBase58(args[0]); err != nil {
					return fmt.Errorf("invalid address: %w", err)
				}
			} else {
				k, err := c.payer()
				if err != nil {
					return err
				}
				addr = k.PublicKey()
			}
			b, err := c.node()
			if err != nil {
				return err
			}
			v, err := b.Balance(context.Background(), addr)
			if err != nil {
				return err
			}
			return c.printFields("Address", addr.String(), "Balance", sol(v), "Lamports", v)
		},
	}
}
