package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/market"
)

func (c *cli) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

// printFields writes aligned "Label: value" lines, or a JSON object of the
// same pairs with --json.
func (c *cli) printFields(pairs ...any) error {
	if c.jsonOutput {
		obj := make(map[string]any, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			obj[pairs[i].(string)] = pairs[i+1]
		}
		return c.printJSON(obj)
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(w, "%s:\t%v\n", pairs[i], pairs[i+1])
	}
	return w.Flush()
}

func (c *cli) printSignature(action string, sig solana.Signature) error {
	if c.jsonOutput {
		return c.printJSON(map[string]string{"action": action, "signature": sig.String()})
	}
	_, err := fmt.Fprintf(c.out, "%s: %s\n", action, sig)
	return err
}

func sol(lamports uint64) string { return market.FormatSOL(lamports) + " SOL" }

func bps(v uint64) string { return fmt.Sprintf("%d bps (%s%%)", v, market.FormatBps(v)) }
