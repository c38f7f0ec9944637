package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/pkg/logger"
	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type listingRow struct {
	ID           string        `db:"id"`
	Title        string        `db:"title"`
	Tagline      string        `db:"tagline"`
	Verified     bool          `db:"verified"`
	SaleStage    string        `db:"sale_stage"`
	CreatedAtMs  int64         `db:"created_at_ms"`
	LaunchDateMs sql.NullInt64 `db:"launch_date_ms"`
}

func (r listingRow) model() model.ItemStatus {
	item := model.ItemStatus{
		ID:        r.ID,
		Title:     r.Title,
		Tagline:   r.Tagline,
		Verified:  r.Verified,
		SaleStage: model.ParseSaleStage(r.SaleStage),
		CreatedAt: fromMillis(r.CreatedAtMs),
	}
	if r.LaunchDateMs.Valid {
		launch := fromMillis(r.LaunchDateMs.Int64)
		item.LaunchDate = &launch
	}
	return item
}

type eventRow struct {
	ID          string `db:"id"`
	ItemID      string `db:"item_id"`
	UserID      string `db:"user_id"`
	Kind        string `db:"kind"`
	Outcome     string `db:"outcome"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

func (r eventRow) model() model.Event {
	return model.Event{
		ID:        r.ID,
		ItemID:    r.ItemID,
		UserID:    r.UserID,
		Kind:      model.EventKind(r.Kind),
		Outcome:   model.Outcome(r.Outcome),
		CreatedAt: fromMillis(r.CreatedAtMs),
	}
}

type snapshotRow struct {
	ItemID             string  `db:"item_id"`
	Period             string  `db:"period"`
	Score              float64 `db:"score"`
	UpvoteScore        float64 `db:"upvote_score"`
	CommentScore       float64 `db:"comment_score"`
	GuessScore         float64 `db:"guess_score"`
	IntroRequestScore  float64 `db:"intro_request_score"`
	IntroAcceptedBonus float64 `db:"intro_accepted_bonus"`
	StatusMultiplier   float64 `db:"status_multiplier"`
	CalculatedAtMs     int64   `db:"calculated_at_ms"`
}

func toSnapshotRow(s model.Snapshot) snapshotRow {
	return snapshotRow{
		ItemID:             s.ItemID,
		Period:             string(s.Window),
		Score:              s.Score,
		UpvoteScore:        s.UpvoteScore,
		CommentScore:       s.CommentScore,
		GuessScore:         s.GuessScore,
		IntroRequestScore:  s.IntroRequestScore,
		IntroAcceptedBonus: s.IntroAcceptedBonus,
		StatusMultiplier:   s.StatusMultiplier,
		CalculatedAtMs:     toMillis(s.CalculatedAt),
	}
}

func (r snapshotRow) model() model.Snapshot {
	return model.Snapshot{
		ItemID:             r.ItemID,
		Window:             model.Window(r.Period),
		Score:              r.Score,
		UpvoteScore:        r.UpvoteScore,
		CommentScore:       r.CommentScore,
		GuessScore:         r.GuessScore,
		IntroRequestScore:  r.IntroRequestScore,
		IntroAcceptedBonus: r.IntroAcceptedBonus,
		StatusMultiplier:   r.StatusMultiplier,
		CalculatedAt:       fromMillis(r.CalculatedAtMs),
	}
}

const snapshotColumns = `item_id, period, score, upvote_score, comment_score, guess_score,
	intro_request_score, intro_accepted_bonus, status_multiplier, calculated_at_ms`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	log logger.Logger
}

// NewSQLite opens (creating if needed) the database at path and applies the
// schema.
func NewSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("sqlite")
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqlitePragmas
	} else {
		dsn += "?" + sqlitePragmas
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	o.log.Debug(context.Background(), "sqlite store opened", logger.String("path", path))
	return &SQLiteStore{db: db, log: o.log}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EventsBetween implements EventSource.
func (s *SQLiteStore) EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, item_id, user_id, kind, outcome, created_at_ms
		FROM engagement_events
		WHERE created_at_ms BETWEEN ? AND ?
		ORDER BY created_at_ms, id
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	return eventModels(rows), nil
}

// ItemEvents implements EventSource.
func (s *SQLiteStore) ItemEvents(ctx context.Context, itemID string, from, to time.Time) ([]model.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, item_id, user_id, kind, outcome, created_at_ms
		FROM engagement_events
		WHERE item_id = ? AND created_at_ms BETWEEN ? AND ?
		ORDER BY created_at_ms, id
	`, itemID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("select events of %s: %w", itemID, err)
	}
	return eventModels(rows), nil
}

// Listings implements ListingSource.
func (s *SQLiteStore) Listings(ctx context.Context) ([]model.ItemStatus, error) {
	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, tagline, verified, sale_stage, created_at_ms, launch_date_ms
		FROM listings ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	out := make([]model.ItemStatus, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// Listing implements ListingSource.
func (s *SQLiteStore) Listing(ctx context.Context, id string) (model.ItemStatus, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, tagline, verified, sale_stage, created_at_ms, launch_date_ms
		FROM listings WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ItemStatus{}, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ItemStatus{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	return row.model(), nil
}

// CountSnapshots implements SnapshotStore.
func (s *SQLiteStore) CountSnapshots(ctx context.Context, window model.Window) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM trending_snapshots WHERE period = ?`, string(window)); err != nil {
		return 0, fmt.Errorf("count snapshots %s: %w", window, err)
	}
	return n, nil
}

// ListSnapshots implements SnapshotStore.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, window model.Window) ([]model.Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+snapshotColumns+`
		FROM trending_snapshots
		WHERE period = ?
		ORDER BY score DESC, calculated_at_ms DESC, item_id ASC
	`, string(window))
	if err != nil {
		return nil, fmt.Errorf("select snapshots %s: %w", window, err)
	}
	out := make([]model.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// GetSnapshot implements SnapshotStore.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, window model.Window, itemID string) (model.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+snapshotColumns+`
		FROM trending_snapshots
		WHERE period = ? AND item_id = ?
	`, string(window), itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("snapshot %s/%s: %w", window, itemID, ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get snapshot %s/%s: %w", window, itemID, err)
	}
	return row.model(), nil
}

// ReplaceWindow implements SnapshotStore in one transaction.
func (s *SQLiteStore) ReplaceWindow(ctx context.Context, w WindowWrite) (res WriteResult, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin window %s: %w", w.Window, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing []string
	if err = tx.SelectContext(ctx, &existing, `SELECT item_id FROM trending_snapshots WHERE period = ?`, string(w.Window)); err != nil {
		return res, fmt.Errorf("select window %s: %w", w.Window, err)
	}

	keep := make(map[string]struct{}, len(w.Rows)+len(w.Retain))
	for _, id := range w.Retain {
		keep[id] = struct{}{}
	}

	for _, snap := range w.Rows {
		row := toSnapshotRow(snap)
		row.Period = string(w.Window)
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO trending_snapshots (`+snapshotColumns+`)
			VALUES (:item_id, :period, :score, :upvote_score, :comment_score, :guess_score,
				:intro_request_score, :intro_accepted_bonus, :status_multiplier, :calculated_at_ms)
			ON CONFLICT(item_id, period) DO UPDATE SET
				score = excluded.score,
				upvote_score = excluded.upvote_score,
				comment_score = excluded.comment_score,
				guess_score = excluded.guess_score,
				intro_request_score = excluded.intro_request_score,
				intro_accepted_bonus = excluded.intro_accepted_bonus,
				status_multiplier = excluded.status_multiplier,
				calculated_at_ms = excluded.calculated_at_ms
		`, row); err != nil {
			return res, fmt.Errorf("upsert snapshot %s/%s: %w", w.Window, snap.ItemID, err)
		}
		keep[snap.ItemID] = struct{}{}
		res.Upserted++
	}

	var stale []string
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		query, args, inErr := sqlx.In(`DELETE FROM trending_snapshots WHERE period = ? AND item_id IN (?)`, string(w.Window), stale)
		if inErr != nil {
			err = inErr
			return res, fmt.Errorf("build delete for window %s: %w", w.Window, err)
		}
		var result sql.Result
		if result, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return res, fmt.Errorf("delete stale snapshots %s: %w", w.Window, err)
		}
		n, _ := result.RowsAffected()
		res.Removed = int(n)
	}

	if err = tx.Commit(); err != nil {
		return res, fmt.Errorf("commit window %s: %w", w.Window, err)
	}
	return res, nil
}

// TryLock implements Locker. The upsert only replaces an expired row, so at
// most one owner holds a name at any time.
func (s *SQLiteStore) TryLock(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	nowMs := toMillis(now)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recalculation_locks (name, owner, expires_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			expires_at_ms = excluded.expires_at_ms
		WHERE recalculation_locks.expires_at_ms <= ? OR recalculation_locks.owner = excluded.owner
	`, name, owner, nowMs+ttl.Milliseconds(), nowMs)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return n == 1, nil
}

// Unlock implements Locker.
func (s *SQLiteStore) Unlock(ctx context.Context, name, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recalculation_locks WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// SaveListings implements Writer.
func (s *SQLiteStore) SaveListings(ctx context.Context, items []model.ItemStatus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin listings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		row := listingRow{
			ID:          item.ID,
			Title:       item.Title,
			Tagline:     item.Tagline,
			Verified:    item.Verified,
			SaleStage:   string(item.SaleStage),
			CreatedAtMs: toMillis(item.CreatedAt),
		}
		if row.SaleStage == "" {
			row.SaleStage = string(model.SaleStageNone)
		}
		if item.LaunchDate != nil {
			row.LaunchDateMs = sql.NullInt64{Int64: toMillis(*item.LaunchDate), Valid: true}
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO listings (id, title, tagline, verified, sale_stage, created_at_ms, launch_date_ms)
			VALUES (:id, :title, :tagline, :verified, :sale_stage, :created_at_ms, :launch_date_ms)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				tagline = excluded.tagline,
				verified = excluded.verified,
				sale_stage = excluded.sale_stage,
				created_at_ms = excluded.created_at_ms,
				launch_date_ms = excluded.launch_date_ms
		`, row); err != nil {
			return fmt.Errorf("upsert listing %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteListing implements Writer.
func (s *SQLiteStore) DeleteListing(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}

// AppendEvents implements Writer. Events with an existing id are ignored.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if err := validateEvents(events); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin events: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		row := eventRow{
			ID:          e.ID,
			ItemID:      e.ItemID,
			UserID:      e.UserID,
			Kind:        string(e.Kind),
			Outcome:     string(e.Outcome),
			CreatedAtMs: toMillis(e.CreatedAt),
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO engagement_events (id, item_id, user_id, kind, outcome, created_at_ms)
			VALUES (:id, :item_id, :user_id, :kind, :outcome, :created_at_ms)
			ON CONFLICT(id) DO NOTHING
		`, row); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func eventModels(rows []eventRow) []model.Event {
	out := make([]model.Event, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
