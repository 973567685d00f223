package storage

// sqlite.go — registro persistido de señales y posiciones.
//
// Estrategia:
//   - `signals`: UNA fila por señal (UPSERT por id determinista). La fila pasa
//     por PENDING → EXECUTED → CLOSED; reescribirla es idempotente.
//   - Retención acotada: tras cada escritura se conservan solo los maxRecords
//     más recientes. Las filas EXECUTED (posiciones abiertas) nunca se podan
//     porque se necesitan para reconciliar al arrancar.
//   - Tiempos en nanosegundos Unix: orden exacto y sin parseo de formatos.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id             TEXT PRIMARY KEY,
    symbol         TEXT    NOT NULL,
    created_at     INTEGER NOT NULL,
    direction      TEXT    NOT NULL,
    z_score        REAL    NOT NULL DEFAULT 0,
    win_prob       REAL    NOT NULL DEFAULT 0,
    entry_price    REAL    NOT NULL DEFAULT 0,
    edge           REAL    NOT NULL DEFAULT 0,
    expected_value REAL    NOT NULL DEFAULT 0,
    kelly          REAL    NOT NULL DEFAULT 0,
    band_position  REAL    NOT NULL DEFAULT 0,
    instrument_id  TEXT,
    token_id       TEXT,
    outcome        TEXT,
    title          TEXT,
    image          TEXT,
    url            TEXT,
    slug           TEXT,
    neg_risk       INTEGER NOT NULL DEFAULT 0,
    status         TEXT    NOT NULL,
    size_usd       REAL    NOT NULL DEFAULT 0,
    order_id       TEXT,
    entry_time     INTEGER,
    exit_price     REAL,
    pnl            REAL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_status  ON signals(status);
`

const selectColumns = `
	id, symbol, created_at, direction, z_score, win_prob, entry_price, edge,
	expected_value, kelly, band_position, instrument_id, token_id, outcome,
	title, image, url, slug, neg_risk, status, size_usd, order_id, entry_time,
	exit_price, pnl, updated_at`

// DefaultMaxRecords es la retención por defecto.
const DefaultMaxRecords = 50

// SQLiteStorage implementa ports.SignalStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db         *sql.DB
	maxRecords int
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
// maxRecords <= 0 usa DefaultMaxRecords.
func NewSQLiteStorage(path string, maxRecords int) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	s := &SQLiteStorage{db: db, maxRecords: maxRecords}
	if err := s.prune(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: %w", err)
	}
	return s, nil
}

// UpsertSignal inserta o reemplaza el registro y poda los más antiguos.
func (s *SQLiteStorage) UpsertSignal(ctx context.Context, rec domain.SignalRecord) error {
	sig := rec.Signal
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			size_usd   = excluded.size_usd,
			order_id   = excluded.order_id,
			entry_time = excluded.entry_time,
			exit_price = excluded.exit_price,
			pnl        = excluded.pnl,
			updated_at = excluded.updated_at
	`,
		rec.ID, sig.Symbol, sig.Timestamp.UnixNano(), string(sig.Direction),
		sig.ZScore, sig.WinProbability, sig.EntryPrice, sig.Edge,
		sig.ExpectedValue, sig.KellyFraction, sig.BandPosition,
		sig.InstrumentID, sig.TokenID, string(sig.Outcome),
		sig.Title, sig.Image, sig.URL, sig.Slug, sig.NegRisk,
		string(rec.Status), rec.SizeUSD, rec.OrderID,
		nullTime(rec.EntryTime), nullFloat(rec.ExitPrice), nullFloat(rec.PnL),
		updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertSignal: %s: %w", rec.ID, err)
	}
	if err := s.prune(ctx); err != nil {
		return fmt.Errorf("storage.UpsertSignal: %w", err)
	}
	return nil
}

// GetSignal devuelve el registro por ID y false si no existe.
func (s *SQLiteStorage) GetSignal(ctx context.Context, id string) (domain.SignalRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM signals WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return domain.SignalRecord{}, false, nil
	}
	if err != nil {
		return domain.SignalRecord{}, false, fmt.Errorf("storage.GetSignal: %s: %w", id, err)
	}
	return rec, true, nil
}

// ListSignals devuelve hasta limit registros, los más recientes primero.
func (s *SQLiteStorage) ListSignals(ctx context.Context, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = s.maxRecords
	}
	return s.query(ctx, "storage.ListSignals",
		`SELECT `+selectColumns+` FROM signals ORDER BY created_at DESC LIMIT ?`, limit)
}

// OpenSignals devuelve los registros EXECUTED en orden de creación.
func (s *SQLiteStorage) OpenSignals(ctx context.Context) ([]domain.SignalRecord, error) {
	return s.query(ctx, "storage.OpenSignals",
		`SELECT `+selectColumns+` FROM signals WHERE status = ? ORDER BY created_at ASC`,
		string(domain.SignalExecuted))
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteStorage) query(ctx context.Context, op, q string, args ...any) ([]domain.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// prune conserva los maxRecords registros más recientes, sin tocar los EXECUTED.
func (s *SQLiteStorage) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM signals
		WHERE status != ?
		  AND id NOT IN (SELECT id FROM signals ORDER BY created_at DESC LIMIT ?)
	`, string(domain.SignalExecuted), s.maxRecords)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (domain.SignalRecord, error) {
	var (
		rec                            domain.SignalRecord
		created, updated               int64
		direction, outcome, status     string
		instrumentID, tokenID, orderID sql.NullString
		title, image, url, slug        sql.NullString
		entryTime                      sql.NullInt64
		exitPrice, pnl                 sql.NullFloat64
	)
	sig := &rec.Signal
	if err := sc.Scan(
		&rec.ID, &sig.Symbol, &created, &direction,
		&sig.ZScore, &sig.WinProbability, &sig.EntryPrice, &sig.Edge,
		&sig.ExpectedValue, &sig.KellyFraction, &sig.BandPosition,
		&instrumentID, &tokenID, &outcome,
		&title, &image, &url, &slug, &sig.NegRisk,
		&status, &rec.SizeUSD, &orderID,
		&entryTime, &exitPrice, &pnl, &updated,
	); err != nil {
		return domain.SignalRecord{}, err
	}

	sig.Timestamp = time.Unix(0, created).UTC()
	sig.Direction = domain.Direction(direction)
	sig.Outcome = domain.Outcome(outcome)
	sig.InstrumentID = instrumentID.String
	sig.TokenID = tokenID.String
	sig.Title = title.String
	sig.Image = image.String
	sig.URL = url.String
	sig.Slug = slug.String

	rec.Status = domain.SignalStatus(status)
	rec.OrderID = orderID.String
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	if entryTime.Valid {
		t := time.Unix(0, entryTime.Int64).UTC()
		rec.EntryTime = &t
	}
	if exitPrice.Valid {
		v := exitPrice.Float64
		rec.ExitPrice = &v
	}
	if pnl.Valid {
		v := pnl.Float64
		rec.PnL = &v
	}
	return rec, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
