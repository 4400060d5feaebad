package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"promphub.io/market/market"
)

func parseMint(s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", s, err)
	}
	return k, nil
}

func parseBps(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid basis points %q: %w", s, err)
	}
	return v, nil
}

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "init <fee-bps>",
		Short:   "Create the marketplace config with this wallet as admin",
		GroupID: "market",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, err := parseBps(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := cl.Initialize(context.Background(), fee)
			if err != nil {
				return err
			}
			return c.printSignature("initialized", sig)
		},
	}
}

func newCloseConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "close-config",
		Short:   "Close the marketplace config (admin only)",
		GroupID: "market",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := cl.CloseConfig(context.Background())
			if err != nil {
				return err
			}
			return c.printSignature("closed", sig)
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var royalty uint64
	var mintRole string
	cmd := &cobra.Command{
		Use:     "create <metadata-uri>",
		Short:   "Register a new asset and mint its single unit to this wallet",
		GroupID: "market",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx := context.Background()
			var mint solana.PublicKey
			var sig solana.Signature
			if mintRole != "" {
				ks, err := c.keyStore()
				if err != nil {
					return err
				}
				mk, err := ks.LoadPrivateKey(c.wallet, mintRole)
				if err != nil {
					return fmt.Errorf("load mint key: %w (run `marketctl keys derive %s`)", err, mintRole)
				}
				mint = mk.PublicKey()
				sig, err = cl.CreateAssetWithMint(ctx, mk, args[0], royalty)
				if err != nil {
					return err
				}
			} else {
				mint, sig, err = cl.CreateAsset(ctx, args[0], royalty)
				if err != nil {
					return err
				}
			}
			return c.printFields("Mint", mint.String(), "Royalty", bps(royalty), "Signature", sig.String())
		},
	}
	cmd.Flags().Uint64Var(&royalty, "royalty", 0, "creator royalty in basis points")
	cmd.Flags().StringVar(&mintRole, "mint-role", "", "use a derived role key as the mint instead of a random one")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list <mint> <price-sol>",
		Short:   "Escrow the asset and list it for sale",
		GroupID: "market",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			price, err := market.ParseSOL(args[1])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := cl.List(context.Background(), mint, price)
			if err != nil {
				return err
			}
			return c.printSignature("listed", sig)
		},
	}
}

func newDelistCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delist <mint>",
		Short:   "Withdraw a listing and return the asset",
		GroupID: "market",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := cl.Delist(context.Background(), mint)
			if err != nil {
				return err
			}
			return c.printSignature("delisted", sig)
		},
	}
}

func newBuyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "buy <mint>",
		Short:   "Buy a listed asset",
		GroupID: "market",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := cl.Buy(context.Background(), mint)
			if err != nil {
				return err
			}
			return c.printSignature("bought", sig)
		},
	}
}
