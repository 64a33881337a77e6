package ecrstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

// PostgresRepository implements Repository against the core metadata schema.
// Bundles live in the fhir table as JSONB alongside the metadata rows.
type PostgresRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgresRepository creates a PostgreSQL-backed repository. A nil
// location renders row dates in the process-local zone.
func NewPostgresRepository(pool *pgxpool.Pool, loc *time.Location) *PostgresRepository {
	if loc == nil {
		loc = time.Local
	}
	return &PostgresRepository{pool: pool, loc: loc}
}

// ListEcrData returns one page of case-summary rows with their reportable
// conditions and rule summaries aggregated per eCR.
func (r *PostgresRepository) ListEcrData(ctx context.Context, params ListParams) ([]EcrDisplay, error) {
	start := time.Now()

	var args []any
	where := postgresWhere(params, &args)

	args = append(args, params.StartIndex, params.ItemsPerPage)
	query := fmt.Sprintf(`
		SELECT ed.eICR_ID, ed.patient_name_first, ed.patient_name_last,
			ed.patient_birth_date, ed.date_created, ed.report_date,
			ARRAY_AGG(DISTINCT erc.condition) FILTER (WHERE erc.condition IS NOT NULL) AS conditions,
			ARRAY_AGG(DISTINCT ers.rule_summary) FILTER (WHERE ers.rule_summary IS NOT NULL) AS rule_summaries
		FROM ecr_data ed
		LEFT JOIN ecr_rr_conditions erc ON ed.eICR_ID = erc.eICR_ID
		LEFT JOIN ecr_rr_rule_summaries ers ON erc.uuid = ers.ecr_rr_conditions_id
		WHERE %s
		GROUP BY ed.eICR_ID, ed.patient_name_first, ed.patient_name_last,
			ed.patient_birth_date, ed.date_created, ed.report_date
		%s
		OFFSET $%d ROWS FETCH NEXT $%d ROWS ONLY`,
		where, postgresSort(params.SortColumn, params.SortDirection), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ecr data")
	}
	defer rows.Close()

	var list []EcrDisplay
	for rows.Next() {
		var (
			id            string
			first, last   *string
			birth, report *time.Time
			created       time.Time
			conds, rules  []string
		)
		if err := rows.Scan(&id, &first, &last, &birth, &created, &report, &conds, &rules); err != nil {
			return nil, errors.Wrap(err, "failed to scan ecr row")
		}

		list = append(list, EcrDisplay{
			EcrID:                id,
			PatientFirstName:     deref(first),
			PatientLastName:      deref(last),
			PatientDateOfBirth:   formatRowDate(birth),
			ReportableConditions: conds,
			RuleSummaries:        rules,
			PatientReportDate:    formatRowDateTime(report, r.loc),
			DateCreated:          formatRowDateTime(&created, r.loc),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read ecr rows")
	}

	metrics.RecordDBQuery("list_ecr_data", time.Since(start))
	return list, nil
}

// TotalEcrCount counts the eCRs matching the params' filters.
func (r *PostgresRepository) TotalEcrCount(ctx context.Context, params ListParams) (int, error) {
	start := time.Now()

	var args []any
	where := postgresWhere(params, &args)
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT ed.eICR_ID)
		FROM ecr_data ed
		LEFT JOIN ecr_rr_conditions erc ON ed.eICR_ID = erc.eICR_ID
		WHERE %s`, where)

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ecr data")
	}

	metrics.RecordDBQuery("total_ecr_count", time.Since(start))
	return count, nil
}

// Conditions returns the distinct reportable-condition vocabulary.
func (r *PostgresRepository) Conditions(ctx context.Context) ([]string, error) {
	start := time.Now()

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT condition FROM ecr_rr_conditions ORDER BY condition`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch conditions")
	}
	defer rows.Close()

	var conditions []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "failed to scan condition")
		}
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read conditions")
	}

	metrics.RecordDBQuery("conditions", time.Since(start))
	return conditions, nil
}

// FindBundle loads a stored FHIR bundle by eCR id.
func (r *PostgresRepository) FindBundle(ctx context.Context, ecrID string) (fhir.Bundle, error) {
	start := time.Now()

	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM fhir WHERE ecr_id = $1`, ecrID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("eCR ID not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find bundle")
	}

	bundle, err := fhir.ParseBundle(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse stored bundle")
	}

	metrics.RecordDBQuery("find_bundle", time.Since(start))
	return bundle, nil
}

// SaveBundle stores a bundle as JSONB, replacing any previous ingest with
// the same eCR id.
func (r *PostgresRepository) SaveBundle(ctx context.Context, ecrID string, bundle fhir.Bundle) error {
	start := time.Now()

	data, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bundle")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO fhir (ecr_id, data) VALUES ($1, $2)
		ON CONFLICT (ecr_id) DO UPDATE SET data = EXCLUDED.data`,
		ecrID, data)
	if err != nil {
		return errors.Wrap(err, "failed to save bundle")
	}

	metrics.RecordDBQuery("save_bundle", time.Since(start))
	return nil
}

// SaveWithCoreMetadata writes the case-summary row plus its reportable
// conditions and rule summaries in one transaction.
func (r *PostgresRepository) SaveWithCoreMetadata(ctx context.Context, ecrID string, meta CoreMetadata) error {
	start := time.Now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	dataSource := meta.DataSource
	if dataSource == "" {
		dataSource = "DB"
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ecr_data (
			eICR_ID, patient_name_last, patient_name_first, patient_birth_date,
			data_source, report_date, set_id, eicr_version_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ecrID, meta.LastName, meta.FirstName, nullable(meta.BirthDate),
		dataSource, nullable(meta.ReportDate), nullable(meta.EicrSetID), nullable(meta.EicrVersionNumber))
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Wrap(err, "metadata for this eCR already exists")
		}
		return errors.Wrap(err, "failed to save ecr metadata")
	}

	for _, rr := range meta.RR {
		conditionID := uuid.New().String()
		_, err = tx.Exec(ctx, `
			INSERT INTO ecr_rr_conditions (uuid, eICR_ID, condition) VALUES ($1, $2, $3)`,
			conditionID, ecrID, rr.Condition)
		if err != nil {
			return errors.Wrap(err, "failed to save reportable condition")
		}

		for _, rule := range rr.RuleSummaries {
			_, err = tx.Exec(ctx, `
				INSERT INTO ecr_rr_rule_summaries (uuid, ecr_rr_conditions_id, rule_summary) VALUES ($1, $2, $3)`,
				uuid.New().String(), conditionID, rule.Summary)
			if err != nil {
				return errors.Wrap(err, "failed to save rule summary")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	metrics.RecordDBQuery("save_core_metadata", time.Since(start))
	return nil
}

// SaveWithExtendedMetadata is not supported on the core schema.
func (r *PostgresRepository) SaveWithExtendedMetadata(ctx context.Context, ecrID string, meta ExtendedMetadata) error {
	return fmt.Errorf("%w: only the core metadata schema is implemented for PostgreSQL", ErrSchemaMismatch)
}

// postgresWhere builds the list query's WHERE clause, appending positional
// arguments as it goes. Date filtering always applies; search and condition
// filters only when set.
func postgresWhere(params ListParams, args *[]any) string {
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	var conditions []string
	if params.Search != "" {
		ph := next("%" + params.Search + "%")
		conditions = append(conditions,
			fmt.Sprintf("(ed.patient_name_first ILIKE %s OR ed.patient_name_last ILIKE %s)", ph, ph))
	}

	conditions = append(conditions,
		fmt.Sprintf("ed.date_created >= %s AND ed.date_created <= %s",
			next(params.Period.Start), next(params.Period.End)))

	if params.Conditions != nil {
		if allEmpty(params.Conditions) {
			conditions = append(conditions,
				"ed.eICR_ID NOT IN (SELECT DISTINCT erc_sub.eICR_ID FROM ecr_rr_conditions erc_sub WHERE erc_sub.condition IS NOT NULL)")
		} else {
			var ors []string
			for _, c := range params.Conditions {
				ors = append(ors, fmt.Sprintf("erc_sub.condition ILIKE %s", next("%"+c+"%")))
			}
			conditions = append(conditions, fmt.Sprintf(
				"ed.eICR_ID IN (SELECT DISTINCT ed_sub.eICR_ID FROM ecr_data ed_sub LEFT JOIN ecr_rr_conditions erc_sub ON ed_sub.eICR_ID = erc_sub.eICR_ID WHERE erc_sub.condition IS NOT NULL AND (%s))",
				strings.Join(ors, " OR ")))
		}
	}

	return strings.Join(conditions, " AND ")
}

// postgresSort renders the validated ORDER BY clause. Every ordering breaks
// ties on the eICR id so pagination stays deterministic across pages.
func postgresSort(column, direction string) string {
	column, direction = normalizeSort(column, direction)
	if column == "patient" {
		return fmt.Sprintf("ORDER BY ed.patient_name_last %s, ed.patient_name_first %s, ed.eICR_ID ASC", direction, direction)
	}
	return fmt.Sprintf("ORDER BY ed.%s %s, ed.eICR_ID ASC", column, direction)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
