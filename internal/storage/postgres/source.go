package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"audio_relay/internal/domain"
)

const sourceColumns = `id, url, cursor_index, state, history, tag, state_changed_at, created_at`

type sourceRow struct {
	ID             int64          `db:"id"`
	URL            string         `db:"url"`
	CursorIndex    int            `db:"cursor_index"`
	State          string         `db:"state"`
	History        pq.StringArray `db:"history"`
	Tag            string         `db:"tag"`
	StateChangedAt time.Time      `db:"state_changed_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r sourceRow) toDomain() *domain.Source {
	state := domain.State(r.State)
	if state != domain.StateAcquiring {
		state = domain.StateIdle
	}
	return &domain.Source{
		ID:             r.ID,
		URL:            r.URL,
		CursorIndex:    r.CursorIndex,
		State:          state,
		History:        domain.NormalizeHistory(r.History),
		Tag:            r.Tag,
		StateChangedAt: r.StateChangedAt,
		CreatedAt:      r.CreatedAt,
	}
}

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) LoadAll(ctx context.Context) ([]*domain.Source, error) {
	var rows []sourceRow
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY id`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}

	sources := make([]*domain.Source, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, r.toDomain())
	}
	return sources, nil
}

func (s *SourceStore) Load(ctx context.Context, id int64) (*domain.Source, error) {
	var row sourceRow
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// Create inserts a fresh idle record for url.
func (s *SourceStore) Create(ctx context.Context, url string) (*domain.Source, error) {
	src := domain.NewSource(url, time.Now().UTC())

	query := `
		INSERT INTO sources (url, cursor_index, state, history, tag, state_changed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		src.URL,
		src.CursorIndex,
		string(src.State),
		pq.StringArray(src.History),
		src.Tag,
		src.StateChangedAt,
		src.CreatedAt,
	).Scan(&src.ID)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (s *SourceStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Save writes the processing record of src: cursor, state and history.
// Url and tag belong to admin commands and are never written here.
func (s *SourceStore) Save(ctx context.Context, src *domain.Source) error {
	query := `
		UPDATE sources SET
			cursor_index = $2,
			state = $3,
			history = $4,
			state_changed_at = $5
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		src.ID,
		src.CursorIndex,
		string(src.State),
		pq.StringArray(domain.NormalizeHistory(src.History)),
		src.StateChangedAt,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Acquire moves the row from idle to acquiring in a single compare-and-set.
// It returns domain.ErrLockHeld when the row is no longer idle.
func (s *SourceStore) Acquire(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE sources SET state = $2, state_changed_at = $3
		WHERE id = $1 AND state = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id,
		string(domain.StateAcquiring),
		at,
		string(domain.StateIdle),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	return domain.ErrLockHeld
}

func (s *SourceStore) ResetAllStates(ctx context.Context, at time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE sources SET state = $1, state_changed_at = $2 WHERE state <> $1`,
		string(domain.StateIdle), at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SourceStore) ResetState(ctx context.Context, id int64, at time.Time) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE sources SET state = $2, state_changed_at = $3 WHERE id = $1`,
		id, string(domain.StateIdle), at,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SourceStore) ResetHistory(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE sources SET history = '{}' WHERE id = $1`, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SourceStore) SetTag(ctx context.Context, id int64, tag string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE sources SET tag = $2 WHERE id = $1`, id, tag,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}
