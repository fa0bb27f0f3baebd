package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aaronwang/community-auction/shared/models"
)

// Dialect selects the SQL flavour spoken by a SQLStore
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on database/sql for Postgres and SQLite
type SQLStore struct {
	*queries
	db *sql.DB
}

// NewPostgresStore opens a Postgres-backed store
func NewPostgresStore(connStr string) (*SQLStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectPostgres), nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
// A single connection serializes every unit of work.
func NewSQLiteStore(path string) (*SQLStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return newSQLStore(db, DialectSQLite), nil
}

func newSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		queries: &queries{db: db, dialect: dialect},
		db:      db,
	}
}

// InitSchema creates the tables and seeds the closed/closed phase record
func (s *SQLStore) InitSchema(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	seed := s.rebind(`
		INSERT INTO auction_phase (id, submissions_open, bidding_open, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if _, err := s.db.ExecContext(ctx, seed, false, false, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to seed auction phase: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a database transaction
func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translate(err))
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&queries{db: sqlTx, dialect: s.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			fmt.Printf("Warning: rollback failed: %v\n", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// translate maps driver errors onto the store's sentinel errors
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", ErrDuplicateID, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %v", ErrDuplicateID, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

type queries struct {
	db      dbtx
	dialect Dialect
}

// rebind rewrites ? placeholders into $n for Postgres
func (q *queries) rebind(query string) string {
	if q.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *queries) lockClause(mode LockMode) string {
	if q.dialect != DialectPostgres {
		return ""
	}
	switch mode {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	}
	return ""
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.db.ExecContext(ctx, q.rebind(query), args...)
	return res, translate(err)
}

const itemColumns = `item_id, owner_id, owner_username, owner_name, kind, display_name, payload,
	base_price, status, submission_time, approval_time, highest_bid, highest_bidder_id,
	highest_bidder_name, admin_message_id, channel_message_id, bidding_message_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item                                 models.Item
		kind, status, payload                string
		approval                             sql.NullTime
		highestBid, bidderID                 sql.NullInt64
		adminMsg, channelMsg, biddingMessage sql.NullInt64
	)

	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.OwnerUsername,
		&item.OwnerName,
		&kind,
		&item.DisplayName,
		&payload,
		&item.BasePrice,
		&status,
		&item.SubmissionTime,
		&approval,
		&highestBid,
		&bidderID,
		&item.HighestBidderName,
		&adminMsg,
		&channelMsg,
		&biddingMessage,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = models.ItemKind(kind)
	item.Status = models.ItemStatus(status)
	if payload != "" {
		item.Payload = []byte(payload)
	}
	if approval.Valid {
		t := approval.Time
		item.ApprovalTime = &t
	}
	item.HighestBid = nullInt(highestBid)
	item.HighestBidderID = nullInt(bidderID)
	item.Messages = models.MessageRefs{
		AdminMessageID:   nullInt(adminMsg),
		ChannelMessageID: nullInt(channelMsg),
		BiddingMessageID: nullInt(biddingMessage),
	}
	return &item, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// GetItem loads one item, optionally locking its row
func (q *queries) GetItem(ctx context.Context, id string, lock LockMode) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE item_id = ?` + q.lockClause(lock)

	item, err := scanItem(q.db.QueryRowContext(ctx, q.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, translate(err))
	}
	return item, nil
}

// ItemExists reports whether the id is taken by a live (not yet cleaned) item
func (q *queries) ItemExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, q.rebind(`SELECT COUNT(*) FROM items WHERE item_id = ?`), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check item id: %w", translate(err))
	}
	return n > 0, nil
}

// InsertItem inserts a new item row
func (q *queries) InsertItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (
			item_id, owner_id, owner_username, owner_name, kind, display_name, payload,
			base_price, status, submission_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.exec(ctx, query,
		item.ID,
		item.OwnerID,
		item.OwnerUsername,
		item.OwnerName,
		string(item.Kind),
		item.DisplayName,
		string(item.Payload),
		item.BasePrice,
		string(item.Status),
		item.SubmissionTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}
	return nil
}

// UpdateItemBid is a compare-and-set on highest_bid
func (q *queries) UpdateItemBid(ctx context.Context, id string, previous *int64, amount, bidderID int64, bidderName string) error {
	query := `
		UPDATE items
		SET highest_bid = ?,
		    highest_bidder_id = ?,
		    highest_bidder_name = ?
		WHERE item_id = ?
		  AND status = ?
		  AND COALESCE(highest_bid, 0) = ?
	`

	var expected int64
	if previous != nil {
		expected = *previous
	}

	res, err := q.exec(ctx, query, amount, bidderID, bidderName, id, string(models.ItemStatusApproved), expected)
	if err != nil {
		return fmt.Errorf("failed to update item bid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// TransitionItem performs a guarded status change
func (q *queries) TransitionItem(ctx context.Context, id string, from, to models.ItemStatus, approvalTime *time.Time) error {
	query := `
		UPDATE items
		SET status = ?,
		    approval_time = COALESCE(?, approval_time)
		WHERE item_id = ?
		  AND status = ?
	`

	var approval any
	if approvalTime != nil {
		approval = approvalTime.UTC()
	}

	res, err := q.exec(ctx, query, string(to), approval, id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition item %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	exists, err := q.ItemExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// SetMessageRefs stores transport message ids; nil fields keep their value
func (q *queries) SetMessageRefs(ctx context.Context, id string, refs models.MessageRefs) error {
	query := `
		UPDATE items
		SET admin_message_id = COALESCE(?, admin_message_id),
		    channel_message_id = COALESCE(?, channel_message_id),
		    bidding_message_id = COALESCE(?, bidding_message_id)
		WHERE item_id = ?
	`

	res, err := q.exec(ctx, query,
		intArg(refs.AdminMessageID),
		intArg(refs.ChannelMessageID),
		intArg(refs.BiddingMessageID),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set message refs: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns items matching filter ordered by submission time
func (q *queries) ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	var (
		where []string
		args  []any
	)

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *filter.OwnerID)
	}
	if filter.HighestBidderID != nil {
		where = append(where, "highest_bidder_id = ?")
		args = append(args, *filter.HighestBidderID)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submission_time, item_id`

	rows, err := q.db.QueryContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", translate(err))
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// InsertBid appends a bid to the history
func (q *queries) InsertBid(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (bid_id, item_id, user_id, username, first_name, amount, bid_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.exec(ctx, query,
		bid.ID,
		bid.ItemID,
		bid.BidderID,
		bid.BidderUsername,
		bid.BidderName,
		bid.Amount,
		bid.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// ListBids retrieves the bid history for an item
func (q *queries) ListBids(ctx context.Context, itemID string, order models.BidOrder) ([]*models.Bid, error) {
	orderBy := "bid_time ASC, bid_id ASC"
	if order == models.BidOrderAmount {
		orderBy = "amount DESC, bid_time ASC"
	}

	query := `
		SELECT bid_id, item_id, user_id, username, first_name, amount, bid_time
		FROM bids
		WHERE item_id = ?
		ORDER BY ` + orderBy

	rows, err := q.db.QueryContext(ctx, q.rebind(query), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", translate(err))
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		bid := &models.Bid{}
		err := rows.Scan(
			&bid.ID,
			&bid.ItemID,
			&bid.BidderID,
			&bid.BidderUsername,
			&bid.BidderName,
			&bid.Amount,
			&bid.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return bids, nil
}

// GetUser loads a user's counters and ban flag
func (q *queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT user_id, username, first_name, last_seen, is_banned, ban_reason,
		       submissions_count, approved_count, rejected_count, bids_count, wins_count
		FROM users
		WHERE user_id = ?
	`

	u := &models.User{}
	err := q.db.QueryRowContext(ctx, q.rebind(query), id).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.LastSeen,
		&u.Banned,
		&u.BanReason,
		&u.Submissions,
		&u.Approvals,
		&u.Rejections,
		&u.Bids,
		&u.Wins,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, translate(err))
	}
	return u, nil
}

// TouchUser creates the user on first contact and refreshes names and last seen
func (q *queries) TouchUser(ctx context.Context, who models.Identity, seen time.Time) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
		    first_name = CASE WHEN excluded.first_name <> '' THEN excluded.first_name ELSE users.first_name END,
		    last_seen = excluded.last_seen
	`

	if _, err := q.exec(ctx, query, who.ID, who.Username, who.Name, seen.UTC()); err != nil {
		return fmt.Errorf("failed to touch user %d: %w", who.ID, err)
	}
	return nil
}

var counterColumns = map[models.UserCounter]bool{
	models.CounterSubmissions: true,
	models.CounterApprovals:   true,
	models.CounterRejections:  true,
	models.CounterBids:        true,
	models.CounterWins:        true,
}

// IncrementCounter bumps one of the user's running counters
func (q *queries) IncrementCounter(ctx context.Context, userID int64, counter models.UserCounter) error {
	if !counterColumns[counter] {
		return fmt.Errorf("unknown user counter %q", counter)
	}

	col := string(counter)
	res, err := q.exec(ctx, `UPDATE users SET `+col+` = `+col+` + 1 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBan sets or clears the ban flag, creating the user row if needed
func (q *queries) SetBan(ctx context.Context, userID int64, banned bool, reason string) error {
	query := `
		INSERT INTO users (user_id, last_seen, is_banned, ban_reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET is_banned = excluded.is_banned,
		    ban_reason = excluded.ban_reason
	`

	if !banned {
		reason = ""
	}
	if _, err := q.exec(ctx, query, userID, time.Now().UTC(), banned, reason); err != nil {
		return fmt.Errorf("failed to set ban for user %d: %w", userID, err)
	}
	return nil
}

// GetPhase reads the singleton phase record
func (q *queries) GetPhase(ctx context.Context, lock LockMode) (models.AuctionPhase, error) {
	query := `SELECT submissions_open, bidding_open, updated_at FROM auction_phase WHERE id = 1` + q.lockClause(lock)

	var phase models.AuctionPhase
	err := q.db.QueryRowContext(ctx, query).Scan(&phase.SubmissionsOpen, &phase.BiddingOpen, &phase.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return phase, ErrNotFound
	}
	if err != nil {
		return phase, fmt.Errorf("failed to get auction phase: %w", translate(err))
	}
	return phase, nil
}

// UpdatePhase sets the given flags (nil leaves a flag unchanged)
func (q *queries) UpdatePhase(ctx context.Context, submissionsOpen, biddingOpen *bool, at time.Time) (models.AuctionPhase, error) {
	query := `
		UPDATE auction_phase
		SET submissions_open = COALESCE(?, submissions_open),
		    bidding_open = COALESCE(?, bidding_open),
		    updated_at = ?
		WHERE id = 1
	`

	var subs, bids any
	if submissionsOpen != nil {
		subs = *submissionsOpen
	}
	if biddingOpen != nil {
		bids = *biddingOpen
	}

	res, err := q.exec(ctx, query, subs, bids, at.UTC())
	if err != nil {
		return models.AuctionPhase{}, fmt.Errorf("failed to update auction phase: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return models.AuctionPhase{}, ErrNotFound
	}
	return q.GetPhase(ctx, LockNone)
}

// DeleteTerminal removes finished items and every bid no longer pointing at an item
func (q *queries) DeleteTerminal(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	marks := make([]string, len(models.TerminalStatuses))
	args := make([]any, len(models.TerminalStatuses))
	for i, s := range models.TerminalStatuses {
		marks[i] = "?"
		args[i] = string(s)
	}

	query := `DELETE FROM items WHERE status IN (` + strings.Join(marks, ", ") + `) RETURNING item_id`
	rows, err := q.db.QueryContext(ctx, q.rebind(query), args...)
	if err != nil {
		return result, fmt.Errorf("failed to delete items: %w", translate(err))
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return result, fmt.Errorf("failed to scan deleted item: %w", err)
		}
		result.ItemIDs = append(result.ItemIDs, id)
	}
	if err := rows.Close(); err != nil {
		return result, fmt.Errorf("failed to delete items: %w", translate(err))
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to delete items: %w", translate(err))
	}
	result.Items = int64(len(result.ItemIDs))

	res, err := q.exec(ctx, `DELETE FROM bids WHERE item_id NOT IN (SELECT item_id FROM items)`)
	if err != nil {
		return result, fmt.Errorf("failed to delete orphaned bids: %w", err)
	}
	if result.Bids, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return result, nil
}
