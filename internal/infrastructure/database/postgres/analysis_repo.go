package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AnalysisRepository persists analysis records in the analysis_records table.
type AnalysisRepository struct {
	executor queryExecutor
	logger   logging.Logger
	now      func() time.Time
}

var _ reaction.AnalysisRepository = (*AnalysisRepository)(nil)

// NewAnalysisRepository records analyses through conn.
func NewAnalysisRepository(conn *Connection, log logging.Logger) *AnalysisRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &AnalysisRepository{
		executor: conn.DB(),
		logger:   log.Named("analysis_repo"),
		now:      time.Now,
	}
}

// Save inserts rec, assigning an id and creation time when missing.
func (r *AnalysisRepository) Save(ctx context.Context, rec *reaction.AnalysisRecord) error {
	if rec == nil {
		return errors.New(errors.ErrCodeValidation, "analysis record is nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	params := rec.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode analysis parameters")
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode analysis results")
	}

	query := `
		INSERT INTO analysis_records (
			id, workspace, smiles, toolkit, function_name, parameters, results, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.executor.ExecContext(ctx, query,
		rec.ID, rec.Workspace, rec.SMILES, rec.Toolkit, rec.Function, paramsJSON, resultsJSON, rec.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save analysis record")
	}

	r.logger.Debug("analysis record saved",
		logging.String("id", rec.ID),
		logging.String("toolkit", rec.Toolkit),
		logging.String("function", rec.Function))
	return nil
}

// FindBySMILES returns the records of a workspace for smiles, newest first.
func (r *AnalysisRepository) FindBySMILES(ctx context.Context, workspace, smiles string) ([]*reaction.AnalysisRecord, error) {
	query := `
		SELECT id, workspace, smiles, toolkit, function_name, parameters, results, created_at
		FROM analysis_records
		WHERE workspace = $1 AND smiles = $2
		ORDER BY created_at DESC
	`
	rows, err := r.executor.QueryContext(ctx, query, workspace, smiles)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query analysis records")
	}
	defer rows.Close()

	var out []*reaction.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate analysis records")
	}
	return out, nil
}

// CountByFunction counts the records of a workspace per analysis function.
func (r *AnalysisRepository) CountByFunction(ctx context.Context, workspace string) (map[string]int64, error) {
	query := `
		SELECT function_name, COUNT(*)
		FROM analysis_records
		WHERE workspace = $1
		GROUP BY function_name
	`
	rows, err := r.executor.QueryContext(ctx, query, workspace)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count analysis records")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			fn string
			n  int64
		)
		if err := rows.Scan(&fn, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan analysis count")
		}
		counts[fn] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate analysis counts")
	}
	return counts, nil
}

func scanAnalysis(rows *sql.Rows) (*reaction.AnalysisRecord, error) {
	var (
		rec         reaction.AnalysisRecord
		paramsJSON  []byte
		resultsJSON []byte
	)
	if err := rows.Scan(&rec.ID, &rec.Workspace, &rec.SMILES, &rec.Toolkit, &rec.Function,
		&paramsJSON, &resultsJSON, &rec.CreatedAt); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan analysis record")
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &rec.Parameters); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode analysis parameters")
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &rec.Results); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode analysis results")
		}
	}
	return &rec, nil
}
