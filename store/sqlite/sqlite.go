/*
Package sqlite provides the SQLite-backed implementation of npd.Store.

PURPOSE:
  Implements every persistence interface of the core engine (accounts,
  documents, lines, warrants, realizations, audit log, sequences) on one
  SQLite database. The same SQL shapes port to PostgreSQL with minor
  dialect changes.

MONEY STORAGE:
  Amounts are integer rupiah, stored as INTEGER columns and converted to
  decimal at the boundary. ApplyDelta is a single UPDATE ... SET x = x + ?
  so the accumulator moves atomically at the SQL level.

TRANSACTIONS:
  WithTx begins one database transaction and hands back a transaction-
  bound copy of the Store; nested WithTx calls reuse the outer
  transaction. A writer mutex serializes transactions in-process; SQLite
  WAL mode handles readers.

SEQUENCES:
  Document numbers come from a dedicated sequence row per (organization,
  year) updated with an upsert-increment-returning statement. There is
  deliberately no scan over existing document numbers.

CONSTRAINT MAPPING:
  UNIQUE violations surface as npd.ConflictError so the engines never
  parse driver error strings themselves.

SEE ALSO:
  - npd/store.go: the interfaces implemented here
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sipd/npd-tracker/npd"
)

// Store implements npd.Store on SQLite.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext // db, or the active transaction
	mu  *sync.Mutex     // serializes write transactions in-process
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer, and pooled
	// connections to :memory: would each see a different database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ext: db, mu: &sync.Mutex{}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Budget tree (program/kegiatan/subkegiatan/akun)
	CREATE TABLE IF NOT EXISTS budget_nodes (
		id TEXT PRIMARY KEY,
		kode TEXT NOT NULL,
		nama TEXT NOT NULL,
		kind TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		organization_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		pagu INTEGER NOT NULL DEFAULT 0,
		committed INTEGER NOT NULL DEFAULT 0,
		disbursed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_budget_nodes_kode
		ON budget_nodes(organization_id, fiscal_year, kode);
	CREATE INDEX IF NOT EXISTS idx_budget_nodes_parent
		ON budget_nodes(parent_id);

	-- NPD documents
	CREATE TABLE IF NOT EXISTS npd_documents (
		id TEXT PRIMARY KEY,
		document_number TEXT NOT NULL,
		jenis TEXT NOT NULL,
		subkegiatan_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		organization_id TEXT NOT NULL,
		tahun INTEGER NOT NULL,
		catatan TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		verified_by TEXT NOT NULL DEFAULT '',
		verified_at TEXT,
		finalized_by TEXT NOT NULL DEFAULT '',
		finalized_at TEXT,
		is_locked BOOLEAN NOT NULL DEFAULT FALSE,
		locked_by TEXT NOT NULL DEFAULT '',
		locked_at TEXT,
		lock_expires_at TEXT,
		lock_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_npd_documents_number
		ON npd_documents(organization_id, document_number);
	CREATE INDEX IF NOT EXISTS idx_npd_documents_org_year
		ON npd_documents(organization_id, tahun);
	CREATE INDEX IF NOT EXISTS idx_npd_documents_status
		ON npd_documents(status);
	CREATE INDEX IF NOT EXISTS idx_npd_documents_locks
		ON npd_documents(is_locked, lock_expires_at);

	-- NPD lines (owned by their document)
	CREATE TABLE IF NOT EXISTS npd_lines (
		id TEXT PRIMARY KEY,
		npd_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		uraian TEXT NOT NULL DEFAULT '',
		jumlah INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_npd_lines_npd
		ON npd_lines(npd_id);
	CREATE INDEX IF NOT EXISTS idx_npd_lines_account
		ON npd_lines(account_id);

	-- SP2D payment warrants (soft-deletable, never removed)
	CREATE TABLE IF NOT EXISTS sp2d_refs (
		id TEXT PRIMARY KEY,
		npd_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		no_sp2d TEXT NOT NULL,
		tgl_sp2d TEXT NOT NULL,
		nilai_cair INTEGER NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sp2d_refs_number
		ON sp2d_refs(organization_id, no_sp2d);
	CREATE INDEX IF NOT EXISTS idx_sp2d_refs_npd
		ON sp2d_refs(npd_id);

	-- Per-warrant stored shares (kept for audit even after soft delete)
	CREATE TABLE IF NOT EXISTS realizations (
		id TEXT PRIMARY KEY,
		sp2d_id TEXT NOT NULL,
		npd_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		line_id TEXT NOT NULL,
		jumlah INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_realizations_sp2d
		ON realizations(sp2d_id);
	CREATE INDEX IF NOT EXISTS idx_realizations_account
		ON realizations(account_id);

	-- Audit trail (append-only; no UPDATE or DELETE statements exist)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_table TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		actor_user_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		entity_data_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_entity
		ON audit_log(entity_table, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_org_time
		ON audit_log(organization_id, created_at DESC);

	-- Document number sequences, one row per (organization, year)
	CREATE TABLE IF NOT EXISTS document_sequences (
		organization_id TEXT NOT NULL,
		tahun INTEGER NOT NULL,
		next_seq INTEGER NOT NULL,
		PRIMARY KEY (organization_id, tahun)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) inTx() bool {
	_, ok := s.ext.(*sqlx.Tx)
	return ok
}

// WithTx runs fn inside one database transaction. Nested calls reuse the
// outer transaction so engine operations compose.
func (s *Store) WithTx(ctx context.Context, fn func(npd.Store) error) error {
	if s.inTx() {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bound := &Store{db: s.db, ext: tx, mu: s.mu}
	if err := fn(bound); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

type nodeRow struct {
	ID             string `db:"id"`
	Kode           string `db:"kode"`
	Nama           string `db:"nama"`
	Kind           string `db:"kind"`
	ParentID       string `db:"parent_id"`
	OrganizationID string `db:"organization_id"`
	FiscalYear     int    `db:"fiscal_year"`
	Status         string `db:"status"`
	Pagu           int64  `db:"pagu"`
	Committed      int64  `db:"committed"`
	Disbursed      int64  `db:"disbursed"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func (r nodeRow) toAccount() npd.BudgetAccount {
	return npd.BudgetAccount{
		ID:             npd.NodeID(r.ID),
		Kode:           r.Kode,
		Nama:           r.Nama,
		Kind:           npd.NodeKind(r.Kind),
		ParentID:       npd.NodeID(r.ParentID),
		OrganizationID: npd.OrgID(r.OrganizationID),
		FiscalYear:     r.FiscalYear,
		Status:         npd.NodeStatus(r.Status),
		Pagu:           npd.NewAmount(r.Pagu),
		Committed:      npd.NewAmount(r.Committed),
		Disbursed:      npd.NewAmount(r.Disbursed),
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}
}

const nodeColumns = `id, kode, nama, kind, parent_id, organization_id, fiscal_year,
	status, pagu, committed, disbursed, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id npd.NodeID) (*npd.BudgetAccount, error) {
	var r nodeRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT `+nodeColumns+` FROM budget_nodes WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acct := r.toAccount()
	return &acct, nil
}

func (s *Store) GetAccountByKode(ctx context.Context, org npd.OrgID, year int, kode string) (*npd.BudgetAccount, error) {
	var r nodeRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT `+nodeColumns+` FROM budget_nodes
		 WHERE organization_id = ? AND fiscal_year = ? AND kode = ?`, org, year, kode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acct := r.toAccount()
	return &acct, nil
}

func (s *Store) SaveAccount(ctx context.Context, acct npd.BudgetAccount) error {
	query := `
		INSERT INTO budget_nodes (` + nodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kode = excluded.kode,
			nama = excluded.nama,
			parent_id = excluded.parent_id,
			status = excluded.status,
			pagu = excluded.pagu,
			committed = excluded.committed,
			disbursed = excluded.disbursed,
			updated_at = excluded.updated_at
	`
	_, err := s.ext.ExecContext(ctx, query,
		acct.ID, acct.Kode, acct.Nama, acct.Kind, acct.ParentID,
		acct.OrganizationID, acct.FiscalYear, acct.Status,
		acct.Pagu.Int64(), acct.Committed.Int64(), acct.Disbursed.Int64(),
		formatTime(acct.CreatedAt), formatTime(acct.UpdatedAt),
	)
	return mapConstraintError(err)
}

// ApplyDelta moves one accumulator atomically at the SQL level. No
// non-negativity check here: the validator has already run in the same
// transaction.
func (s *Store) ApplyDelta(ctx context.Context, id npd.NodeID, kind npd.DeltaKind, delta npd.Amount) error {
	var column string
	switch kind {
	case npd.DeltaCommitted:
		column = "committed"
	case npd.DeltaDisbursed:
		column = "disbursed"
	default:
		return fmt.Errorf("unknown delta kind %q", kind)
	}

	res, err := s.ext.ExecContext(ctx,
		`UPDATE budget_nodes SET `+column+` = `+column+` + ?, updated_at = ? WHERE id = ?`,
		delta.Int64(), formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &npd.NotFoundError{Entity: "account", ID: string(id)}
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, parentID npd.NodeID) ([]npd.BudgetAccount, error) {
	var rows []nodeRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT `+nodeColumns+` FROM budget_nodes WHERE parent_id = ? ORDER BY kode ASC`, parentID)
	if err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

func (s *Store) ListNodes(ctx context.Context, org npd.OrgID, year int) ([]npd.BudgetAccount, error) {
	var rows []nodeRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT `+nodeColumns+` FROM budget_nodes
		 WHERE organization_id = ? AND fiscal_year = ? ORDER BY kode ASC`, org, year)
	if err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

func toAccounts(rows []nodeRow) []npd.BudgetAccount {
	accounts := make([]npd.BudgetAccount, len(rows))
	for i, r := range rows {
		accounts[i] = r.toAccount()
	}
	return accounts
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

type documentRow struct {
	ID             string         `db:"id"`
	DocumentNumber string         `db:"document_number"`
	Jenis          string         `db:"jenis"`
	SubkegiatanID  string         `db:"subkegiatan_id"`
	Status         string         `db:"status"`
	OrganizationID string         `db:"organization_id"`
	Tahun          int            `db:"tahun"`
	Catatan        string         `db:"catatan"`
	CreatedBy      string         `db:"created_by"`
	VerifiedBy     string         `db:"verified_by"`
	VerifiedAt     sql.NullString `db:"verified_at"`
	FinalizedBy    string         `db:"finalized_by"`
	FinalizedAt    sql.NullString `db:"finalized_at"`
	IsLocked       bool           `db:"is_locked"`
	LockedBy       string         `db:"locked_by"`
	LockedAt       sql.NullString `db:"locked_at"`
	LockExpiresAt  sql.NullString `db:"lock_expires_at"`
	LockReason     string         `db:"lock_reason"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (r documentRow) toDocument() npd.Document {
	return npd.Document{
		ID:             npd.DocumentID(r.ID),
		DocumentNumber: r.DocumentNumber,
		Jenis:          npd.Jenis(r.Jenis),
		SubkegiatanID:  npd.NodeID(r.SubkegiatanID),
		Status:         npd.Status(r.Status),
		OrganizationID: npd.OrgID(r.OrganizationID),
		Tahun:          r.Tahun,
		Catatan:        r.Catatan,
		CreatedBy:      r.CreatedBy,
		VerifiedBy:     r.VerifiedBy,
		VerifiedAt:     parseNullTime(r.VerifiedAt),
		FinalizedBy:    r.FinalizedBy,
		FinalizedAt:    parseNullTime(r.FinalizedAt),
		IsLocked:       r.IsLocked,
		LockedBy:       r.LockedBy,
		LockedAt:       parseNullTime(r.LockedAt),
		LockExpiresAt:  parseNullTime(r.LockExpiresAt),
		LockReason:     r.LockReason,
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}
}

const documentColumns = `id, document_number, jenis, subkegiatan_id, status, organization_id,
	tahun, catatan, created_by, verified_by, verified_at, finalized_by, finalized_at,
	is_locked, locked_by, locked_at, lock_expires_at, lock_reason, created_at, updated_at`

func (s *Store) GetDocument(ctx context.Context, id npd.DocumentID) (*npd.Document, error) {
	var r documentRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT `+documentColumns+` FROM npd_documents WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc := r.toDocument()
	return &doc, nil
}

func (s *Store) SaveDocument(ctx context.Context, doc npd.Document) error {
	query := `
		INSERT INTO npd_documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			catatan = excluded.catatan,
			verified_by = excluded.verified_by,
			verified_at = excluded.verified_at,
			finalized_by = excluded.finalized_by,
			finalized_at = excluded.finalized_at,
			is_locked = excluded.is_locked,
			locked_by = excluded.locked_by,
			locked_at = excluded.locked_at,
			lock_expires_at = excluded.lock_expires_at,
			lock_reason = excluded.lock_reason,
			updated_at = excluded.updated_at
	`
	_, err := s.ext.ExecContext(ctx, query,
		doc.ID, doc.DocumentNumber, doc.Jenis, doc.SubkegiatanID, doc.Status,
		doc.OrganizationID, doc.Tahun, doc.Catatan, doc.CreatedBy,
		doc.VerifiedBy, formatNullTime(doc.VerifiedAt),
		doc.FinalizedBy, formatNullTime(doc.FinalizedAt),
		doc.IsLocked, doc.LockedBy, formatNullTime(doc.LockedAt),
		formatNullTime(doc.LockExpiresAt), doc.LockReason,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
	)
	return mapConstraintError(err)
}

func (s *Store) ListDocuments(ctx context.Context, org npd.OrgID, year int) ([]npd.Document, error) {
	var rows []documentRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT `+documentColumns+` FROM npd_documents
		 WHERE organization_id = ? AND tahun = ?
		 ORDER BY document_number ASC`, org, year)
	if err != nil {
		return nil, err
	}
	return toDocuments(rows), nil
}

func (s *Store) ListExpiredLocks(ctx context.Context, now time.Time) ([]npd.Document, error) {
	var rows []documentRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT `+documentColumns+` FROM npd_documents
		 WHERE is_locked = TRUE AND lock_expires_at IS NOT NULL AND lock_expires_at < ?`,
		formatTime(now))
	if err != nil {
		return nil, err
	}
	return toDocuments(rows), nil
}

func toDocuments(rows []documentRow) []npd.Document {
	docs := make([]npd.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.toDocument()
	}
	return docs
}

// NextDocumentNumber increments the per-(organization, year) sequence and
// returns the allocated value. The upsert + RETURNING runs as one
// statement, so concurrent creators can never observe the same number.
func (s *Store) NextDocumentNumber(ctx context.Context, org npd.OrgID, year int) (int, error) {
	var seq int
	err := sqlx.GetContext(ctx, s.ext, &seq, `
		INSERT INTO document_sequences (organization_id, tahun, next_seq)
		VALUES (?, ?, 1)
		ON CONFLICT(organization_id, tahun) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq
	`, org, year)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate document number: %w", err)
	}
	return seq, nil
}

// =============================================================================
// LINE STORE
// =============================================================================

type lineRow struct {
	ID        string `db:"id"`
	NPDID     string `db:"npd_id"`
	AccountID string `db:"account_id"`
	Uraian    string `db:"uraian"`
	Jumlah    int64  `db:"jumlah"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r lineRow) toLine() npd.Line {
	return npd.Line{
		ID:        npd.LineID(r.ID),
		NPDID:     npd.DocumentID(r.NPDID),
		AccountID: npd.NodeID(r.AccountID),
		Uraian:    r.Uraian,
		Jumlah:    npd.NewAmount(r.Jumlah),
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

func (s *Store) GetLine(ctx context.Context, id npd.LineID) (*npd.Line, error) {
	var r lineRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT id, npd_id, account_id, uraian, jumlah, created_at, updated_at
		 FROM npd_lines WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	line := r.toLine()
	return &line, nil
}

func (s *Store) SaveLine(ctx context.Context, line npd.Line) error {
	query := `
		INSERT INTO npd_lines (id, npd_id, account_id, uraian, jumlah, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uraian = excluded.uraian,
			jumlah = excluded.jumlah,
			updated_at = excluded.updated_at
	`
	_, err := s.ext.ExecContext(ctx, query,
		line.ID, line.NPDID, line.AccountID, line.Uraian, line.Jumlah.Int64(),
		formatTime(line.CreatedAt), formatTime(line.UpdatedAt),
	)
	return err
}

func (s *Store) DeleteLine(ctx context.Context, id npd.LineID) error {
	_, err := s.ext.ExecContext(ctx, `DELETE FROM npd_lines WHERE id = ?`, id)
	return err
}

func (s *Store) ListLines(ctx context.Context, npdID npd.DocumentID) ([]npd.Line, error) {
	var rows []lineRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT id, npd_id, account_id, uraian, jumlah, created_at, updated_at
		 FROM npd_lines WHERE npd_id = ? ORDER BY created_at ASC, id ASC`, npdID)
	if err != nil {
		return nil, err
	}
	lines := make([]npd.Line, len(rows))
	for i, r := range rows {
		lines[i] = r.toLine()
	}
	return lines, nil
}

func (s *Store) SumCommittedForAccount(ctx context.Context, org npd.OrgID, accountID npd.NodeID, excludeNPD npd.DocumentID) (npd.Amount, error) {
	var total int64
	err := sqlx.GetContext(ctx, s.ext, &total, `
		SELECT COALESCE(SUM(l.jumlah), 0)
		FROM npd_lines l
		JOIN npd_documents d ON d.id = l.npd_id
		WHERE d.organization_id = ? AND l.account_id = ?
		  AND d.status != 'draft' AND d.id != ?
	`, org, accountID, excludeNPD)
	if err != nil {
		return npd.Amount{}, err
	}
	return npd.NewAmount(total), nil
}

// =============================================================================
// SP2D STORE
// =============================================================================

type sp2dRow struct {
	ID             string         `db:"id"`
	NPDID          string         `db:"npd_id"`
	OrganizationID string         `db:"organization_id"`
	NoSP2D         string         `db:"no_sp2d"`
	TglSP2D        string         `db:"tgl_sp2d"`
	NilaiCair      int64          `db:"nilai_cair"`
	DeletedAt      sql.NullString `db:"deleted_at"`
	DeletedBy      string         `db:"deleted_by"`
	CreatedBy      string         `db:"created_by"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (r sp2dRow) toRef() npd.SP2DRef {
	return npd.SP2DRef{
		ID:             npd.SP2DID(r.ID),
		NPDID:          npd.DocumentID(r.NPDID),
		OrganizationID: npd.OrgID(r.OrganizationID),
		NoSP2D:         r.NoSP2D,
		TglSP2D:        parseTime(r.TglSP2D),
		NilaiCair:      npd.NewAmount(r.NilaiCair),
		DeletedAt:      parseNullTime(r.DeletedAt),
		DeletedBy:      r.DeletedBy,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}
}

const sp2dColumns = `id, npd_id, organization_id, no_sp2d, tgl_sp2d, nilai_cair,
	deleted_at, deleted_by, created_by, created_at, updated_at`

func (s *Store) GetSP2D(ctx context.Context, id npd.SP2DID) (*npd.SP2DRef, error) {
	var r sp2dRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT `+sp2dColumns+` FROM sp2d_refs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref := r.toRef()
	return &ref, nil
}

func (s *Store) GetSP2DByNumber(ctx context.Context, org npd.OrgID, noSP2D string) (*npd.SP2DRef, error) {
	var r sp2dRow
	err := sqlx.GetContext(ctx, s.ext, &r,
		`SELECT `+sp2dColumns+` FROM sp2d_refs
		 WHERE organization_id = ? AND no_sp2d = ?`, org, noSP2D)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref := r.toRef()
	return &ref, nil
}

func (s *Store) SaveSP2D(ctx context.Context, ref npd.SP2DRef) error {
	query := `
		INSERT INTO sp2d_refs (` + sp2dColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			no_sp2d = excluded.no_sp2d,
			tgl_sp2d = excluded.tgl_sp2d,
			nilai_cair = excluded.nilai_cair,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by,
			updated_at = excluded.updated_at
	`
	_, err := s.ext.ExecContext(ctx, query,
		ref.ID, ref.NPDID, ref.OrganizationID, ref.NoSP2D,
		formatTime(ref.TglSP2D), ref.NilaiCair.Int64(),
		formatNullTime(ref.DeletedAt), ref.DeletedBy, ref.CreatedBy,
		formatTime(ref.CreatedAt), formatTime(ref.UpdatedAt),
	)
	return mapConstraintError(err)
}

func (s *Store) ListSP2DByNPD(ctx context.Context, npdID npd.DocumentID) ([]npd.SP2DRef, error) {
	var rows []sp2dRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT `+sp2dColumns+` FROM sp2d_refs WHERE npd_id = ? ORDER BY created_at ASC`, npdID)
	if err != nil {
		return nil, err
	}
	refs := make([]npd.SP2DRef, len(rows))
	for i, r := range rows {
		refs[i] = r.toRef()
	}
	return refs, nil
}

type realizationRow struct {
	ID        string `db:"id"`
	SP2DID    string `db:"sp2d_id"`
	NPDID     string `db:"npd_id"`
	AccountID string `db:"account_id"`
	LineID    string `db:"line_id"`
	Jumlah    int64  `db:"jumlah"`
	CreatedAt string `db:"created_at"`
}

func (s *Store) SaveRealizations(ctx context.Context, rows []npd.Realization) error {
	for _, row := range rows {
		_, err := s.ext.ExecContext(ctx, `
			INSERT INTO realizations (id, sp2d_id, npd_id, account_id, line_id, jumlah, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, row.ID, row.SP2DID, row.NPDID, row.AccountID, row.LineID,
			row.Jumlah.Int64(), formatTime(row.CreatedAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ReplaceRealizations(ctx context.Context, sp2dID npd.SP2DID, rows []npd.Realization) error {
	if _, err := s.ext.ExecContext(ctx,
		`DELETE FROM realizations WHERE sp2d_id = ?`, sp2dID); err != nil {
		return err
	}
	return s.SaveRealizations(ctx, rows)
}

func (s *Store) ListRealizations(ctx context.Context, sp2dID npd.SP2DID) ([]npd.Realization, error) {
	var rows []realizationRow
	err := sqlx.SelectContext(ctx, s.ext, &rows,
		`SELECT id, sp2d_id, npd_id, account_id, line_id, jumlah, created_at
		 FROM realizations WHERE sp2d_id = ? ORDER BY created_at ASC, id ASC`, sp2dID)
	if err != nil {
		return nil, err
	}
	out := make([]npd.Realization, len(rows))
	for i, r := range rows {
		out[i] = npd.Realization{
			ID:        r.ID,
			SP2DID:    npd.SP2DID(r.SP2DID),
			NPDID:     npd.DocumentID(r.NPDID),
			AccountID: npd.NodeID(r.AccountID),
			LineID:    npd.LineID(r.LineID),
			Jumlah:    npd.NewAmount(r.Jumlah),
			CreatedAt: parseTime(r.CreatedAt),
		}
	}
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry npd.AuditEntry) error {
	var dataJSON any
	if entry.EntityData != nil {
		b, err := json.Marshal(entry.EntityData)
		if err != nil {
			return fmt.Errorf("failed to marshal audit data: %w", err)
		}
		dataJSON = string(b)
	}

	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, entity_table, entity_id, actor_user_id,
			organization_id, entity_data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Action, entry.EntityTable, entry.EntityID,
		entry.ActorUserID, entry.OrganizationID, dataJSON, formatTime(entry.CreatedAt))
	return err
}

func (s *Store) QueryAudit(ctx context.Context, filter npd.AuditFilter) ([]npd.AuditEntry, error) {
	query := `SELECT id, action, entity_table, entity_id, actor_user_id,
		organization_id, entity_data_json, created_at FROM audit_log WHERE 1=1`
	var args []any

	if filter.OrganizationID != "" {
		query += ` AND organization_id = ?`
		args = append(args, filter.OrganizationID)
	}
	if filter.EntityTable != "" {
		query += ` AND entity_table = ?`
		args = append(args, filter.EntityTable)
	}
	if filter.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	if filter.ActorUserID != "" {
		query += ` AND actor_user_id = ?`
		args = append(args, filter.ActorUserID)
	}
	if len(filter.Actions) > 0 {
		query += ` AND action IN (?` + strings.Repeat(", ?", len(filter.Actions)-1) + `)`
		for _, a := range filter.Actions {
			args = append(args, a)
		}
	}
	if filter.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*filter.To))
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.ext.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []npd.AuditEntry
	for rows.Next() {
		var (
			e         npd.AuditEntry
			dataJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityTable, &e.EntityID,
			&e.ActorUserID, &e.OrganizationID, &dataJSON, &createdAt); err != nil {
			return nil, err
		}
		if dataJSON.Valid && dataJSON.String != "" {
			json.Unmarshal([]byte(dataJSON.String), &e.EntityData)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &npd.ConflictError{Reason: err.Error()}
	}
	return err
}
