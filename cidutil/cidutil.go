// Package cidutil derives the content identifiers of archived snapshots.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns the CIDv1 of data using the "raw" multicodec and a sha2-256
// multihash.
func Sum(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String is Sum in string form, or "" if hashing fails.
func String(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Digest returns the sha2-256 digest carried by id.
func Digest(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("cidutil: undefined cid")
	}
	dm, err := multihash.Decode(id.Hash())
	if err != nil {
		return nil, err
	}
	if dm.Code != multihash.SHA2_256 {
		return nil, fmt.Errorf("cidutil: unsupported hash %s", multihash.Codes[dm.Code])
	}
	return dm.Digest, nil
}

// FromDigest rebuilds the raw CIDv1 of a sha2-256 digest.
func FromDigest(digest []byte) (cid.Cid, error) {
	if len(digest) != 32 {
		return cid.Undef, fmt.Errorf("cidutil: digest is %d bytes", len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
