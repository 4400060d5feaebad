package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show marketplace records",
		GroupID: "views",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show the marketplace config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			cfg, err := cl.FetchConfig(context.Background())
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(cfg)
			}
			return c.printFields("Admin", cfg.Admin.String(), "Fee", bps(cfg.FeeBps))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "asset <mint>",
		Short: "Show an asset record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			a, err := cl.FetchAsset(context.Background(), mint)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(a)
			}
			return c.printFields("Mint", a.Mint.String(), "Creator", a.Creator.String(),
				"Metadata", a.MetadataURI, "Royalty", bps(a.RoyaltyBps))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "metadata <mint>",
		Short: "Show the token metadata of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			md, err := cl.FetchMetadata(context.Background(), mint)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(md)
			}
			fields := []any{"Name", md.Name, "Symbol", md.Symbol, "URI", md.URI,
				"Seller fee", bps(uint64(md.SellerFeeBasisPoints)), "Mutable", md.IsMutable}
			for _, cr := range md.Creators {
				fields = append(fields, "Creator", fmt.Sprintf("%s (%d%%, verified=%t)", cr.Address, cr.Share, cr.Verified))
			}
			return c.printFields(fields...)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "listing <mint>",
		Short: "Show the listing of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMint(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx := context.Background()
			l, err := cl.FetchListing(ctx, mint)
			if err != nil {
				return err
			}
			escrow, err := cl.EscrowBalance(ctx, mint)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(map[string]any{"listing": l, "escrow": escrow})
			}
			return c.printFields("Mint", l.Mint.String(), "Seller", l.Seller.String(),
				"Price", sol(l.Price), "Active", l.IsActive, "Escrow", escrow)
		},
	})
	return cmd
}

func newQuoteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "quote <mint>",
		Short:   "Preview how a purchase would be split",
		GroupID: "views",
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
			split, l, err := cl.Quote(context.Background(), mint)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(map[string]any{"seller": l.Seller, "split": split})
			}
			return c.printFields("Seller", l.Seller.String(), "Price", sol(split.Price),
				"Platform fee", sol(split.PlatformFee), "Royalty", sol(split.Royalty),
				"Seller receives", sol(split.SellerAmount))
		},
	}
}
