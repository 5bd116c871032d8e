// Package browser keeps a local view of one directory's contents
// synchronized against the remote storage API while the user
// navigates and mutates faster than the network confirms.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bycloud/cloudpilot/internal/logging"
	"github.com/bycloud/cloudpilot/internal/metrics"
	"github.com/bycloud/cloudpilot/pkg/api"
	"github.com/bycloud/cloudpilot/pkg/session"
)

// ErrSuperseded signals that a load was cancelled because a newer load
// for a different directory took over. It is internal bookkeeping, not
// a user-facing failure; callers treat it as "nothing to show".
var ErrSuperseded = errors.New("listing load superseded by a newer one")

// LoadError is a recoverable listing fetch failure. The previous
// listing stays visible; nothing is blanked on a transient error.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Listing is the current directory view. It is replaced wholesale on
// every successful sync, never patched, so readers never observe a mix
// of stale and fresh items. Files and Folders are unique by id.
type Listing struct {
	DirectoryID string // empty = root
	Files       []api.FileRecord
	Folders     []api.DirectoryRecord
}

// rootKey is the in-flight bookkeeping key for the root directory.
const rootKey = "root"

func keyFor(directoryID string) string {
	if directoryID == "" {
		return rootKey
	}
	return directoryID
}

// pendingLoad tracks the single fetch allowed in flight. A load for a
// different key cancels it; the superseded flag is checked before any
// result is committed, so a stale completion can never win.
type pendingLoad struct {
	key        string
	cancel     context.CancelFunc
	superseded bool

	done    chan struct{} // closed once listing/err are set
	listing *Listing
	err     error
}

// Config holds browser configuration.
type Config struct {
	Client   *api.Client
	Resolver *session.Resolver
	Store    *session.Store
	PageSize int
	// UploadSettleDelay is the pause between a successful upload and
	// the resync, covering backend eventual-consistency lag. Tunable.
	UploadSettleDelay time.Duration
}

// Browser owns the current Listing and the in-flight fetch bookkeeping.
type Browser struct {
	client      *api.Client
	resolver    *session.Resolver
	store       *session.Store
	pageSize    int
	settleDelay time.Duration

	mu      sync.Mutex
	current *Listing
	pending *pendingLoad
	sort    SortState
}

// New creates a Browser. Sort preferences persisted in the store are
// picked up so the ordering survives a restart within the session.
func New(cfg Config) *Browser {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	b := &Browser{
		client:      cfg.Client,
		resolver:    cfg.Resolver,
		store:       cfg.Store,
		pageSize:    cfg.PageSize,
		settleDelay: cfg.UploadSettleDelay,
		sort:        SortState{Key: SortByName},
	}
	if p := cfg.Store.Prefs(); p.SortKey != "" {
		b.sort = SortState{Key: SortKey(p.SortKey), Desc: p.SortDesc}
	}
	return b
}

// Current returns the last committed listing, or nil before the first
// successful load. It always corresponds to the most recently issued
// load that was not superseded.
func (b *Browser) Current() *Listing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Load synchronizes the listing for directoryID (empty = root).
//
// At most one fetch is in flight per Browser. A second Load for the
// same directory while one is outstanding does not start another
// network round trip; it waits for the in-flight result. A Load for a
// different directory cancels the outstanding fetch, whose result is
// discarded when it eventually lands.
func (b *Browser) Load(ctx context.Context, directoryID string) (*Listing, error) {
	userID, err := b.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	key := keyFor(directoryID)

	b.mu.Lock()
	if p := b.pending; p != nil {
		if p.key == key {
			b.mu.Unlock()
			metrics.RecordListingCoalesced()
			select {
			case <-p.done:
				return p.listing, p.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		p.superseded = true
		p.cancel()
		metrics.RecordListingSuperseded()
		logging.Debug("superseding in-flight listing fetch",
			zap.String("old", p.key), zap.String("new", key))
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	p := &pendingLoad{key: key, cancel: cancel, done: make(chan struct{})}
	b.pending = p
	b.mu.Unlock()

	listing, err := b.fetch(fetchCtx, userID, directoryID)
	cancel()

	b.mu.Lock()
	if p.superseded {
		b.mu.Unlock()
		p.err = ErrSuperseded
		close(p.done)
		return nil, ErrSuperseded
	}
	b.pending = nil

	if err != nil {
		b.mu.Unlock()
		p.err = b.loadFailure(directoryID, err)
		close(p.done)
		return nil, p.err
	}

	sortListing(listing, b.sort)
	b.current = listing
	b.mu.Unlock()

	metrics.RecordListingSync("ok")
	p.listing = listing
	close(p.done)
	return listing, nil
}

// loadFailure classifies a fetch error. Authorization failures tear
// down the session; cancellation passes through untouched; everything
// else becomes a recoverable LoadError and the previous listing stays.
func (b *Browser) loadFailure(directoryID string, err error) error {
	switch {
	case api.IsAuthFailure(err):
		metrics.RecordListingSync("unauthorized")
		if cerr := b.store.Clear(); cerr != nil {
			logging.Warn("could not clear session state", zap.Error(cerr))
		}
		return fmt.Errorf("%w: %v", api.ErrUnauthenticated, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		metrics.RecordListingSync("error")
		logging.Warn("listing fetch failed",
			zap.String("directory", keyFor(directoryID)), zap.Error(err))
		return &LoadError{Message: fmt.Sprintf("could not load directory contents: %v", err), Err: err}
	}
}

// fetch issues the file and folder listings in parallel and merges
// them into a de-duplicated Listing.
func (b *Browser) fetch(ctx context.Context, userID, directoryID string) (*Listing, error) {
	var (
		wg       sync.WaitGroup
		files    []api.FileRecord
		folders  []api.DirectoryRecord
		filesErr error
		dirsErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		files, filesErr = b.fetchAllFiles(ctx, userID, directoryID)
	}()
	go func() {
		defer wg.Done()
		page, err := b.client.ListDirectories(ctx, userID, directoryID)
		if err != nil {
			dirsErr = err
			return
		}
		folders = page.Items
	}()
	wg.Wait()

	// Prefer the auth failure when both legs fail, so the session is
	// torn down rather than surfacing a generic load error.
	if filesErr != nil || dirsErr != nil {
		if api.IsAuthFailure(dirsErr) {
			return nil, dirsErr
		}
		if filesErr != nil {
			return nil, filesErr
		}
		return nil, dirsErr
	}

	return &Listing{
		DirectoryID: directoryID,
		Files:       dedupFiles(files),
		Folders:     dedupFolders(folders),
	}, nil
}

// fetchAllFiles walks the paged file listing until exhausted.
func (b *Browser) fetchAllFiles(ctx context.Context, userID, directoryID string) ([]api.FileRecord, error) {
	var all []api.FileRecord
	offset := 0
	for {
		page, err := b.client.ListFiles(ctx, userID, directoryID, b.pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) < b.pageSize {
			return all, nil
		}
		if page.Total > 0 && len(all) >= page.Total {
			return all, nil
		}
		offset += b.pageSize
	}
}

// dedupFiles drops repeated ids, last seen wins. The backend should
// never return duplicates; this guards the unique-by-id invariant.
func dedupFiles(in []api.FileRecord) []api.FileRecord {
	out := make([]api.FileRecord, 0, len(in))
	index := make(map[string]int, len(in))
	for _, f := range in {
		if i, ok := index[f.ID]; ok {
			out[i] = f
			continue
		}
		index[f.ID] = len(out)
		out = append(out, f)
	}
	return out
}

func dedupFolders(in []api.DirectoryRecord) []api.DirectoryRecord {
	out := make([]api.DirectoryRecord, 0, len(in))
	index := make(map[string]int, len(in))
	for _, d := range in {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}
