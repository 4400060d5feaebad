package abciapp

import (
	"errors"
	"log/slog"

	"promphub.io/market/chain"
	"promphub.io/market/ledger"
	"promphub.io/market/storage"
	"promphub.io/market/store"
)

// Checkpoint archives the runtime's current snapshot and moves the archive
// head to it.
func Checkpoint(rt *chain.Runtime, archive storage.SnapshotArchive, log *slog.Logger) (storage.Head, error) {
	height, hash, snap, err := rt.Snapshot()
	if err != nil {
		return storage.Head{}, err
	}
	head, err := storage.Checkpoint(archive, height, hash[:], snap)
	if err != nil {
		return storage.Head{}, err
	}
	log.Info("snapshot archived", "height", height, "cid", head.CID, "bytes", len(snap))
	return head, nil
}

// RestoreLatest loads the archive head into kv when kv is empty. It reports
// whether a snapshot was applied.
func RestoreLatest(kv store.KV, archive storage.SnapshotArchive) (storage.Head, bool, error) {
	empty, err := ledger.IsEmpty(kv)
	if err != nil || !empty {
		return storage.Head{}, false, err
	}
	head, data, err := storage.Latest(archive)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Head{}, false, nil
	}
	if err != nil {
		return storage.Head{}, false, err
	}
	if err := ledger.Restore(kv, data); err != nil {
		return storage.Head{}, false, err
	}
	return head, true, nil
}
