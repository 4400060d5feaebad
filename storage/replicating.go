package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"promphub.io/market/cidutil"
)

// NamedArchive associates an archive with a stable name for reporting.
type NamedArchive struct {
	Name    string
	Archive SnapshotArchive
}

// Replicating writes every snapshot and head to all archives.
//
// Reads fall back in slice order. Writes require every archive to return the
// CID computed from the bytes (otherwise ErrCIDMismatch). Head returns the
// highest head among the replicas, so a mirror that missed an update does
// not roll a restore back.
type Replicating struct {
	Archives []NamedArchive
}

var _ SnapshotArchive = (*Replicating)(nil)

// PutAll writes the same bytes to all archives and returns the canonical CID
// with the per-archive results.
func (r Replicating) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.Sum(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Archives) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: Replicating has no archives")
	}

	out := make(map[string]cid.Cid, len(r.Archives))
	for _, a := range r.Archives {
		if a.Archive == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil archive %q", a.Name)
		}
		got, err := a.Archive.Put(bytes)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: %s: %w", a.Name, err)
		}
		out[a.Name] = got
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r Replicating) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r Replicating) Get(id cid.Cid) ([]byte, error) {
	for _, a := range r.Archives {
		if a.Archive == nil {
			continue
		}
		out, err := a.Archive.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r Replicating) Has(id cid.Cid) bool {
	for _, a := range r.Archives {
		if a.Archive != nil && a.Archive.Has(id) {
			return true
		}
	}
	return false
}

func (r Replicating) Head() (Head, error) {
	var best Head
	found := false
	for _, a := range r.Archives {
		if a.Archive == nil {
			continue
		}
		h, err := a.Archive.Head()
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return Head{}, fmt.Errorf("storage: %s: %w", a.Name, err)
		}
		if !found || h.Height > best.Height {
			best, found = h, true
		}
	}
	if !found {
		return Head{}, ErrNotFound
	}
	return best, nil
}

func (r Replicating) SetHead(h Head) error {
	for _, a := range r.Archives {
		if a.Archive == nil {
			continue
		}
		if err := a.Archive.SetHead(h); err != nil {
			return fmt.Errorf("storage: %s: %w", a.Name, err)
		}
	}
	return nil
}
