package main

import (
	"encoding/base64"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"promphub.io/market/keys"
)

func newKeysCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keys",
		Short:   "Manage local wallets",
		GroupID: "wallet",
	}
	cmd.AddCommand(newKeysInitCmd(c), newKeysDeriveCmd(c), newKeysListCmd(c), newKeysShowCmd(c),
		newKeysImportCmd(c), newKeysExportCmd(c), newKeysSignCmd(c), newKeysVerifyCmd(c))
	return cmd
}

func newKeysInitCmd(c *cli) *cobra.Command {
	var seedHex string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the wallet named by --wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := c.keyStore()
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return err
				}
			}
			addr, path, err := ks.InitializeRootKey(c.wallet, seed, force)
			if err != nil {
				return err
			}
			return c.printFields("Wallet", c.wallet, "Address", addr.String(), "File", path)
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "hex seed to import instead of generating one")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing wallet")
	return cmd
}

func newKeysDeriveCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "derive <role>",
		Short: "Derive a role key from the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := c.keyStore()
			if err != nil {
				return err
			}
			addr, path, err := ks.DeriveKeyFromRole(c.wallet, args[0], force)
			if err != nil {
				return err
			}
			return c.printFields("Wallet", c.wallet, "Role", args[0], "Address", addr.String(), "File", path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing role key")
	return cmd
}

func newKeysListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wallets and their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := c.keyStore()
			if err != nil {
				return err
			}
			entries, err := ks.ListKeys()
			if err != nil {
				return err
			}
			if c.jsonOutput {
				if entries == nil {
					entries = []keys.KeyEntry{}
				}
				return c.printJSON(entries)
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tROLES")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Address, strings.Join(e.Roles, ","))
			}
			return w.Flush()
		},
	}
}

func newKeysShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the address of the selected wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := c.payer()
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(map[string]string{"address": k.PublicKey().String()})
			}
			_, err = fmt.Fprintln(c.out, k.PublicKey())
			return err
		},
	}
}

func newKeysImportCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <keypair.json>",
		Short: "Store a solana-keygen key file as the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := c.keyStore()
			if err != nil {
				return err
			}
			addr, path, err := ks.ImportKeypair(c.wallet, args[0], force)
			if err != nil {
				return err
			}
			return c.printFields("Wallet", c.wallet, "Address", addr.String(), "File", path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing wallet")
	return cmd
}

func newKeysExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export <keypair.json>",
		Short: "Write the selected key as a solana-keygen key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := c.payer()
			if err != nil {
				return err
			}
			if err := keys.WriteKeypairFile(args[0], k); err != nil {
				return err
			}
			return c.printFields("Address", k.PublicKey().String(), "File", args[0])
		},
	}
}

func newKeysSignCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message to prove control of the address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := c.payer()
			if err != nil {
				return err
			}
			sig, err := keys.SignMessage(k, []byte(args[0]))
			if err != nil {
				return err
			}
			return c.printFields("Address", k.PublicKey().String(), "Signature", sig.String(),
				"Base64", base64.StdEncoding.EncodeToString(sig[:]))
		},
	}
}

func newKeysVerifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <address> <message> <signature>",
		Short: "Check a message signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			sig, err := solana.SignatureFromBase58(args[2])
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}
			if !keys.VerifyMessage(addr, []byte(args[1]), sig) {
				return fmt.Errorf("signature does not match")
			}
			return c.printFields("Valid", true)
		},
	}
}
