// Package market defines the records, events, fee arithmetic and error
// taxonomy of the prompt marketplace.
//
// Three record types are stored on the ledger, each under a derived address:
//
//   - Config: singleton platform settings (admin, fee_bps).
//   - Asset: immutable provenance for one mint (creator, metadata uri, royalty).
//   - Listing: the sale state for one mint, reused across relists.
//
// Records are encoded with an 8-byte type discriminator followed by borsh
// fields and padded with zeros to their fixed allocation size.
package market
