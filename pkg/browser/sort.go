package browser

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the ordering within each listing group. Folders are
// always presented before files regardless of key.
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
	// SortByDate is accepted but has no effect while entries carry no
	// timestamp. Kept so a future backend field slots in without an
	// interface change.
	SortByDate SortKey = "date"
)

// SortState is the selected key plus direction.
type SortState struct {
	Key  SortKey
	Desc bool
}

// SortState returns the current ordering selection.
func (b *Browser) SortState() SortState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sort
}

// SetSort selects the ordering, re-sorts the current listing, and
// persists the choice so it survives a restart within the session.
func (b *Browser) SetSort(key SortKey, desc bool) {
	b.mu.Lock()
	b.sort = SortState{Key: key, Desc: desc}
	if b.current != nil {
		sortListing(b.current, b.sort)
	}
	b.mu.Unlock()

	prefs := b.store.Prefs()
	prefs.SortKey = string(key)
	prefs.SortDesc = desc
	_ = b.store.SetPrefs(prefs)
}

// sortListing orders both groups in place. Comparisons the entries
// cannot answer (size or date on folders, date on files) leave the
// group in its incoming order.
func sortListing(l *Listing, s SortState) {
	// A Collator carries internal buffers and must not be shared
	// across goroutines, so build one per sort.
	collator := collate.New(language.Und, collate.Loose)
	switch s.Key {
	case SortBySize:
		sort.SliceStable(l.Files, func(i, j int) bool {
			if s.Desc {
				return l.Files[i].FileSize > l.Files[j].FileSize
			}
			return l.Files[i].FileSize < l.Files[j].FileSize
		})
	case SortByDate:
		// No timestamp on either entity yet.
	default:
		sort.SliceStable(l.Files, func(i, j int) bool {
			c := collator.CompareString(l.Files[i].FileName, l.Files[j].FileName)
			if s.Desc {
				return c > 0
			}
			return c < 0
		})
		sort.SliceStable(l.Folders, func(i, j int) bool {
			c := collator.CompareString(l.Folders[i].Name, l.Folders[j].Name)
			if s.Desc {
				return c > 0
			}
			return c < 0
		})
	}
}
