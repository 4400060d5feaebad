// Command marketctl manages wallets and talks to a marketd node.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"promphub.io/market/client"
	"promphub.io/market/keys"
	"promphub.io/market/program"
	"promphub.io/market/rpcsvc"
)

// cli holds the persistent flags and the lazily opened connection.
type cli struct {
	serverAddr string
	keysDir    string
	wallet     string
	role       string
	keypair    string
	programID  string
	jsonOutput bool
	timeout    time.Duration

	out     io.Writer
	backend client.Backend
	conn    *rpcsvc.Client
}

func defaultServer() string {
	if s := os.Getenv("MARKET_SERVER"); s != "" {
		return s
	}
	return "localhost:7070"
}

func defaultWallet() string {
	if s := os.Getenv("MARKET_WALLET"); s != "" {
		return s
	}
	return "default"
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "marketctl <command>",
		Short:         "Wallet and client tool for the prompt marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.out == nil {
				c.out = cmd.OutOrStdout()
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.serverAddr, "server", defaultServer(), "marketd gRPC address")
	pf.StringVar(&c.keysDir, "keys-dir", "", "key store directory (default ~/.promphub/keys)")
	pf.StringVar(&c.wallet, "wallet", defaultWallet(), "wallet name in the key store")
	pf.StringVar(&c.role, "role", "", "use a derived role key of the wallet")
	pf.StringVar(&c.keypair, "keypair", "", "solana-keygen JSON key file instead of the key store")
	pf.StringVar(&c.programID, "program", program.DefaultProgramID.String(), "marketplace program id")
	pf.BoolVar(&c.jsonOutput, "json", false, "output as JSON")
	pf.DurationVar(&c.timeout, "timeout", 30*time.Second, "per-request timeout")

	root.AddGroup(
		&cobra.Group{ID: "wallet", Title: "Wallet:"},
		&cobra.Group{ID: "market", Title: "Marketplace:"},
		&cobra.Group{ID: "views", Title: "Views:"},
	)
	root.AddCommand(newKeysCmd(c), newAirdropCmd(c), newBalanceCmd(c))
	root.AddCommand(newInitCmd(c), newCloseConfigCmd(c), newCreateCmd(c), newListCmd(c), newDelistCmd(c), newBuyCmd(c))
	root.AddCommand(newShowCmd(c), newQuoteCmd(c))
	return root
}

func (c *cli) keyStore() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(c.keysDir)
}

func (c *cli) payer() (solana.PrivateKey, error) {
	if c.keypair != "" {
		return keys.ReadKeypairFile(c.keypair)
	}
	ks, err := c.keyStore()
	if err != nil {
		return nil, err
	}
	k, err := ks.LoadPrivateKey(c.wallet, c.role)
	if err != nil {
		return nil, fmt.Errorf("load wallet %q: %w (run `marketctl keys init`)", c.wallet, err)
	}
	return k, nil
}

func (c *cli) node() (client.Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	conn, err := rpcsvc.Dial(c.serverAddr, rpcsvc.DialOptions{Timeout: c.timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.Timeout = c.timeout
	c.conn = conn
	return conn, nil
}

func (c *cli) client() (*client.Client, error) {
	pid, err := solana.PublicKeyFromBase58(c.programID)
	if err != nil {
		return nil, fmt.Errorf("invalid --program: %w", err)
	}
	key, err := c.payer()
	if err != nil {
		return nil, err
	}
	b, err := c.node()
	if err != nil {
		return nil, err
	}
	return client.New(b, pid, key), nil
}

func main() {
	if err := newRootCmd(&cli{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
