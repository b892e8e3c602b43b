package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/distlock"
	"github.com/ignite/podmatch/internal/pkg/logger"
)

// ValuesAPI is the part of the Sheets API the outreach list needs.
type ValuesAPI interface {
	ReadColumn(ctx context.Context, spreadsheetID, a1Range string) ([]string, error)
	AppendRows(ctx context.Context, spreadsheetID, a1Range string, rows [][]any) (int, error)
}

// ReadMode controls where ExistingIDs looks.
type ReadMode int

const (
	// ReadCached uses the column cache and falls back to the API on a miss.
	ReadCached ReadMode = iota
	// ReadCacheOnly never calls the API; a cache miss means no dedup info.
	ReadCacheOnly
	// ReadFresh always calls the API and refreshes the cache.
	ReadFresh
)

// ParseReadMode maps the sheets.read_mode setting. Empty means ReadCached.
func ParseReadMode(s string) (ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cached":
		return ReadCached, nil
	case "cache_only", "cache-only":
		return ReadCacheOnly, nil
	case "fresh":
		return ReadFresh, nil
	default:
		return ReadCached, fmt.Errorf("unknown sheets read mode %q (want cached, cache_only or fresh)", s)
	}
}

// LockFunc returns the lock guarding one sheet, or nil for no locking.
type LockFunc func(spreadsheetID string) distlock.Lock

// Options configures an OutreachList.
type Options struct {
	Tab         string
	IDColumn    string
	ReadTimeout time.Duration
	ReadMode    ReadMode
	// Lock serializes read-then-append per sheet when set.
	Lock     LockFunc
	LockWait time.Duration
}

// IDSet is the identifier column of a sheet. Degraded is true when the
// column could not be read and the set is empty for that reason.
type IDSet struct {
	IDs      map[string]struct{}
	Degraded bool
}

// Has reports whether id is listed.
func (s IDSet) Has(id string) bool {
	_, ok := s.IDs[id]
	return ok
}

// AppendResult counts what AppendNew did.
type AppendResult struct {
	Added         int
	Skipped       int
	DedupDegraded bool
}

// OutreachList reads and appends outreach rows with deduplication on the
// podcast identifier column.
type OutreachList struct {
	api   ValuesAPI
	cache *ColumnCache
	opts  Options
}

// NewOutreachList wires the API client and an optional column cache.
func NewOutreachList(api ValuesAPI, cache *ColumnCache, opts Options) *OutreachList {
	if opts.Tab == "" {
		opts.Tab = "Podcasts"
	}
	if opts.IDColumn == "" {
		opts.IDColumn = "A"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	return &OutreachList{api: api, cache: cache, opts: opts}
}

func (l *OutreachList) idRange() string {
	return fmt.Sprintf("%s!%s2:%s", quoteTab(l.opts.Tab), l.opts.IDColumn, l.opts.IDColumn)
}

func (l *OutreachList) appendRange() string {
	return fmt.Sprintf("%s!A:%c", quoteTab(l.opts.Tab), 'A'+len(domain.OutreachHeader)-1)
}

func quoteTab(tab string) string {
	if strings.ContainsAny(tab, " '!") {
		return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab
}

// ExistingIDs returns the identifiers already in the sheet. It never fails:
// a read error or timeout yields an empty, degraded set.
func (l *OutreachList) ExistingIDs(ctx context.Context, spreadsheetID string) IDSet {
	if l.cache != nil && l.opts.ReadMode != ReadFresh {
		ids, ok, err := l.cache.Get(ctx, spreadsheetID)
		switch {
		case err != nil:
			logger.Warn("sheet column cache read failed", "spreadsheet_id", spreadsheetID, "error", err)
		case ok:
			return IDSet{IDs: ids}
		}
		if l.opts.ReadMode == ReadCacheOnly {
			logger.Warn("sheet column not cached, proceeding without dedup", "spreadsheet_id", spreadsheetID)
			return IDSet{IDs: map[string]struct{}{}, Degraded: true}
		}
	}

	rctx, cancel := context.WithTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()
	col, err := l.api.ReadColumn(rctx, spreadsheetID, l.idRange())
	if err != nil {
		logger.Warn("sheet identifier read failed, proceeding without dedup", "spreadsheet_id", spreadsheetID, "error", err)
		return IDSet{IDs: map[string]struct{}{}, Degraded: true}
	}

	ids := make(map[string]struct{}, len(col))
	for _, id := range col {
		ids[id] = struct{}{}
	}
	if l.cache != nil {
		if err := l.cache.Set(ctx, spreadsheetID, col); err != nil {
			logger.Warn("sheet column cache write failed", "spreadsheet_id", spreadsheetID, "error", err)
		}
	}
	return IDSet{IDs: ids}
}

// AppendNew appends the rows whose identifier is neither in the sheet nor
// earlier in rows. Without a lock this is a read-then-write sequence and two
// concurrent calls for the same sheet can both append the same podcast.
func (l *OutreachList) AppendNew(ctx context.Context, spreadsheetID string, rows []domain.OutreachRow) (AppendResult, error) {
	if spreadsheetID == "" {
		return AppendResult{}, fmt.Errorf("%w: spreadsheet id is required", domain.ErrValidation)
	}

	var lock distlock.Lock
	if l.opts.Lock != nil {
		lock = l.opts.Lock(spreadsheetID)
	}

	var res AppendResult
	err := distlock.Guard(ctx, lock, l.opts.LockWait, 250*time.Millisecond, func(ctx context.Context) error {
		var err error
		res, err = l.appendNew(ctx, spreadsheetID, rows)
		return err
	})
	return res, err
}

func (l *OutreachList) appendNew(ctx context.Context, spreadsheetID string, rows []domain.OutreachRow) (AppendResult, error) {
	existing := l.ExistingIDs(ctx, spreadsheetID)
	res := AppendResult{DedupDegraded: existing.Degraded}

	fresh := make([]domain.OutreachRow, 0, len(rows))
	batch := make(map[string]bool, len(rows))
	for _, r := range rows {
		id := strings.TrimSpace(r.ExternalID)
		if id == "" || existing.Has(id) || batch[id] {
			res.Skipped++
			continue
		}
		batch[id] = true
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	values := make([][]any, len(fresh))
	newIDs := make([]string, len(fresh))
	for i, r := range fresh {
		values[i] = r.Values()
		newIDs[i] = r.ExternalID
	}
	if _, err := l.api.AppendRows(ctx, spreadsheetID, l.appendRange(), values); err != nil {
		// The append may have landed before the error; the next read must
		// come from the sheet.
		l.invalidate(spreadsheetID)
		return res, fmt.Errorf("append outreach rows: %w", err)
	}
	res.Added = len(fresh)

	if l.cache != nil {
		if err := l.cache.Add(ctx, spreadsheetID, newIDs); err != nil {
			logger.Warn("sheet column cache update failed", "spreadsheet_id", spreadsheetID, "error", err)
			l.invalidate(spreadsheetID)
		}
	}
	return res, nil
}

// invalidate drops the cached column so it cannot hide rows just written.
func (l *OutreachList) invalidate(spreadsheetID string) {
	if l.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.cache.Invalidate(ctx, spreadsheetID); err != nil {
		logger.Warn("sheet column cache invalidate failed", "spreadsheet_id", spreadsheetID, "error", err)
	}
}
