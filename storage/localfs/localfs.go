package localfs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"promphub.io/market/cidutil"
	"promphub.io/market/storage"
)

const headFile = "HEAD"

// Archive is a local filesystem snapshot archive.
//
// Snapshots are stored immutably under objects/, sharded by the first two
// characters of their CID. HEAD is a small JSON file naming the latest
// snapshot; it is replaced atomically.
type Archive struct {
	root string
}

// New constructs an archive rooted at root. The directory will be created if needed.
func New(root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, "objects"), 0o755); err != nil {
		return nil, err
	}
	return &Archive{root: root}, nil
}

func (a *Archive) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := a.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := a.Get(id)
			if rerr != nil || string(existing) != string(bytes) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (a *Archive) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(a.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.Sum(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (a *Archive) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(a.pathFor(id))
	return err == nil
}

func (a *Archive) Head() (storage.Head, error) {
	b, err := os.ReadFile(filepath.Join(a.root, headFile))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Head{}, storage.ErrNotFound
		}
		return storage.Head{}, err
	}
	var h storage.Head
	if err := json.Unmarshal(b, &h); err != nil {
		return storage.Head{}, storage.ErrInvalidHead
	}
	return h, nil
}

// SetHead moves HEAD. The named snapshot must already be archived.
func (a *Archive) SetHead(h storage.Head) error {
	id, err := cid.Decode(h.CID)
	if err != nil {
		return storage.ErrInvalidCID
	}
	if !a.Has(id) {
		return storage.ErrNotFound
	}
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(a.root, ".HEAD-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(a.root, headFile))
}

func (a *Archive) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(a.root, "objects", s)
	}
	return filepath.Join(a.root, "objects", s[:2], s)
}
