package storage

import (
	"encoding/hex"

	"github.com/ipfs/go-cid"

	"promphub.io/market/cidutil"
)

// Archive is a content-addressed store of ledger snapshots.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type Archive interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Head points at the most recent snapshot.
type Head struct {
	Height  uint64 `json:"height"`
	CID     string `json:"cid"`
	AppHash string `json:"app_hash"`
}

// HeadStore persists the Head pointer. Head MUST return ErrNotFound before
// the first SetHead.
type HeadStore interface {
	Head() (Head, error)
	SetHead(Head) error
}

// SnapshotArchive is an Archive that also tracks its head.
type SnapshotArchive interface {
	Archive
	HeadStore
}

// Checkpoint archives snapshot taken at height and moves the head to it.
func Checkpoint(a SnapshotArchive, height uint64, appHash, snapshot []byte) (Head, error) {
	id, err := a.Put(snapshot)
	if err != nil {
		return Head{}, err
	}
	h := Head{Height: height, CID: id.String(), AppHash: hex.EncodeToString(appHash)}
	if err := a.SetHead(h); err != nil {
		return Head{}, err
	}
	return h, nil
}

// Latest returns the head and the snapshot bytes it names.
func Latest(a SnapshotArchive) (Head, []byte, error) {
	h, err := a.Head()
	if err != nil {
		return Head{}, nil, err
	}
	id, err := cid.Decode(h.CID)
	if err != nil {
		return Head{}, nil, ErrInvalidCID
	}
	b, err := a.Get(id)
	if err != nil {
		return Head{}, nil, err
	}
	got, err := cidutil.Sum(b)
	if err != nil {
		return Head{}, nil, err
	}
	if got != id {
		return Head{}, nil, ErrCIDMismatch
	}
	return h, b, nil
}
