// Package keys manages local wallet keys for marketctl.
//
// A wallet is a 32-byte Ed25519 seed stored hex-encoded on disk. Role keys
// (for example a dedicated mint authority or a second buyer) are derived from
// a wallet seed deterministically, so a backup of the wallet seed restores
// every role key.
//
// Keys are solana-go PrivateKey values; their public half is the account
// address used on the ledger.
package keys
