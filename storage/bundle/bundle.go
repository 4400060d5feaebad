// Package bundle moves archived ledger snapshots between nodes as a single
// deterministic TAR file.
//
// Layout:
//
//	blocks/<cid>   snapshot bytes, one entry per CID
//	head.json      the head pointer, present when the bundle carries one
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"promphub.io/market/cidutil"
	"promphub.io/market/storage"
)

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Extra lists additional snapshot CIDs to carry alongside the head.
	Extra []cid.Cid
	// OmitHead leaves head.json out of the bundle.
	OmitHead bool
}

// Export writes the archive's head snapshot (and any Extra CIDs) to w.
//
// The bytes are deterministic for a given archive state: entries are sorted
// and TAR headers are normalized. Every block is checked against its CID
// before it is written.
func Export(w io.Writer, a storage.SnapshotArchive, opts ExportOptions) (storage.Head, error) {
	if a == nil {
		return storage.Head{}, fmt.Errorf("bundle: nil archive")
	}
	head, err := a.Head()
	if err != nil {
		return storage.Head{}, err
	}
	headID, err := cid.Decode(head.CID)
	if err != nil || !headID.Defined() {
		return storage.Head{}, storage.ErrInvalidCID
	}

	uniq := map[string]cid.Cid{headID.String(): headID}
	for _, id := range opts.Extra {
		if !id.Defined() {
			return storage.Head{}, storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, s := range names {
		id := uniq[s]
		b, err := a.Get(id)
		if err != nil {
			_ = tw.Close()
			return storage.Head{}, err
		}
		got, err := cidutil.Sum(b)
		if err != nil {
			_ = tw.Close()
			return storage.Head{}, err
		}
		if got != id {
			_ = tw.Close()
			return storage.Head{}, storage.ErrCIDMismatch
		}
		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			_ = tw.Close()
			return storage.Head{}, err
		}
	}

	if !opts.OmitHead {
		b, err := json.Marshal(head)
		if err != nil {
			_ = tw.Close()
			return storage.Head{}, err
		}
		if err := writeFile(tw, "head.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return storage.Head{}, err
		}
	}
	return head, tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips entries outside the bundle layout instead of
	// failing the import.
	IgnoreUnknown bool
	// KeepHead leaves the destination head alone even when the bundle
	// carries a newer one.
	KeepHead bool
}

// Import reads a bundle from r into a and returns the head it carried.
// found is false when the bundle has no head.json.
func Import(r io.Reader, a storage.SnapshotArchive) (head storage.Head, found bool, err error) {
	return ImportWithOptions(r, a, ImportOptions{})
}

// ImportWithOptions is Import with explicit options.
//
// Blocks must hash to the CID in their entry name. A head is only adopted
// when its snapshot was part of the bundle (or is already present in a)
// and its height is not below the destination's current head.
func ImportWithOptions(r io.Reader, a storage.SnapshotArchive, opts ImportOptions) (storage.Head, bool, error) {
	if a == nil {
		return storage.Head{}, false, fmt.Errorf("bundle: nil archive")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var head *storage.Head

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return storage.Head{}, false, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return storage.Head{}, false, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return storage.Head{}, false, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == "head.json":
			if head != nil {
				return storage.Head{}, false, fmt.Errorf("bundle: duplicate head.json")
			}
			var hd storage.Head
			if err := json.NewDecoder(tr).Decode(&hd); err != nil {
				return storage.Head{}, false, fmt.Errorf("bundle: head.json: %w", err)
			}
			head = &hd

		case strings.HasPrefix(name, "blocks/"):
			id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
			if derr != nil || !id.Defined() {
				return storage.Head{}, false, storage.ErrInvalidCID
			}
			key := id.String()
			if _, ok := seen[key]; ok {
				return storage.Head{}, false, fmt.Errorf("bundle: duplicate block entry: %s", key)
			}
			seen[key] = struct{}{}

			payload, err := io.ReadAll(tr)
			if err != nil {
				return storage.Head{}, false, err
			}
			got, err := cidutil.Sum(payload)
			if err != nil {
				return storage.Head{}, false, err
			}
			if got != id {
				return storage.Head{}, false, storage.ErrCIDMismatch
			}
			putID, err := a.Put(payload)
			if err != nil {
				return storage.Head{}, false, err
			}
			if putID != id {
				return storage.Head{}, false, storage.ErrCIDMismatch
			}

		default:
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return storage.Head{}, false, fmt.Errorf("bundle: unknown entry: %s", name)
		}
	}

	if head == nil {
		return storage.Head{}, false, nil
	}
	id, err := cid.Decode(head.CID)
	if err != nil || !id.Defined() {
		return storage.Head{}, false, storage.ErrInvalidCID
	}
	if !a.Has(id) {
		return storage.Head{}, false, fmt.Errorf("bundle: head snapshot %s: %w", head.CID, storage.ErrNotFound)
	}
	if opts.KeepHead {
		return *head, true, nil
	}
	cur, err := a.Head()
	switch {
	case err == nil && cur.Height > head.Height:
		return *head, true, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return storage.Head{}, false, err
	}
	if err := a.SetHead(*head); err != nil {
		return storage.Head{}, false, err
	}
	return *head, true, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
