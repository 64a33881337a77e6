package ecrstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

// SQLServerRepository implements Repository against the extended metadata
// schema. It persists metadata only; bundles stay with the upstream NBS
// installation, so FindBundle and SaveBundle report ErrNoBundleStorage.
type SQLServerRepository struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLServerRepository creates a SQL Server-backed repository. A nil
// location renders row dates in the process-local zone.
func NewSQLServerRepository(db *sql.DB, loc *time.Location) *SQLServerRepository {
	if loc == nil {
		loc = time.Local
	}
	return &SQLServerRepository{db: db, loc: loc}
}

// ListEcrData returns one page of case-summary rows. Conditions and rule
// summaries aggregate per row as comma-separated strings, split for display.
func (r *SQLServerRepository) ListEcrData(ctx context.Context, params ListParams) ([]EcrDisplay, error) {
	start := time.Now()

	var args []any
	where := sqlserverWhere(params, &args)
	args = append(args,
		sql.Named("offsetRows", params.StartIndex),
		sql.Named("fetchRows", params.ItemsPerPage))

	query := fmt.Sprintf(`
		SELECT ed.eICR_ID, ed.first_name, ed.last_name, ed.birth_date,
			ed.date_created, ed.encounter_start_date,
			(SELECT STRING_AGG([condition], ',') FROM (
				SELECT DISTINCT erc.[condition]
				FROM ecr_rr_conditions AS erc
				WHERE erc.eICR_ID = ed.eICR_ID
			) AS distinct_conditions) AS conditions,
			(SELECT STRING_AGG(rule_summary, ',') FROM (
				SELECT DISTINCT ers.rule_summary
				FROM ecr_rr_rule_summaries AS ers
				LEFT JOIN ecr_rr_conditions AS erc ON ers.ecr_rr_conditions_id = erc.uuid
				WHERE erc.eICR_ID = ed.eICR_ID
			) AS distinct_rule_summaries) AS rule_summaries
		FROM ecr_data ed
		WHERE %s
		%s
		OFFSET @offsetRows ROWS FETCH NEXT @fetchRows ROWS ONLY`,
		where, sqlserverSort(params.SortColumn, params.SortDirection))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ecr data")
	}
	defer rows.Close()

	var list []EcrDisplay
	for rows.Next() {
		var (
			id            string
			first, last   sql.NullString
			birth, report sql.NullTime
			created       time.Time
			conds, rules  sql.NullString
		)
		if err := rows.Scan(&id, &first, &last, &birth, &created, &report, &conds, &rules); err != nil {
			return nil, errors.Wrap(err, "failed to scan ecr row")
		}

		list = append(list, EcrDisplay{
			EcrID:                id,
			PatientFirstName:     first.String,
			PatientLastName:      last.String,
			PatientDateOfBirth:   formatRowDate(nullTime(birth)),
			ReportableConditions: splitAggregate(conds.String),
			RuleSummaries:        splitAggregate(rules.String),
			PatientReportDate:    formatRowDateTime(nullTime(report), r.loc),
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
func (r *SQLServerRepository) TotalEcrCount(ctx context.Context, params ListParams) (int, error) {
	start := time.Now()

	var args []any
	where := sqlserverWhere(params, &args)
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT ed.eICR_ID)
		FROM ecr_data ed
		LEFT JOIN ecr_rr_conditions erc ON ed.eICR_ID = erc.eICR_ID
		WHERE %s`, where)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ecr data")
	}

	metrics.RecordDBQuery("total_ecr_count", time.Since(start))
	return count, nil
}

// Conditions returns the distinct reportable-condition vocabulary.
func (r *SQLServerRepository) Conditions(ctx context.Context) ([]string, error) {
	start := time.Now()

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT [condition] FROM ecr_rr_conditions ORDER BY [condition]`)
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

// FindBundle is not supported; SQL Server deployments read bundles from the
// NBS installation itself.
func (r *SQLServerRepository) FindBundle(ctx context.Context, ecrID string) (fhir.Bundle, error) {
	return nil, ErrNoBundleStorage
}

// SaveBundle is not supported on the metadata-only backend.
func (r *SQLServerRepository) SaveBundle(ctx context.Context, ecrID string, bundle fhir.Bundle) error {
	return ErrNoBundleStorage
}

// SaveWithCoreMetadata is not supported on the extended schema.
func (r *SQLServerRepository) SaveWithCoreMetadata(ctx context.Context, ecrID string, meta CoreMetadata) error {
	return fmt.Errorf("%w: only the extended metadata schema is implemented for SQL Server", ErrSchemaMismatch)
}

// SaveWithExtendedMetadata writes the full extended column set in one
// transaction: the ECR_DATA row, then every patient address, lab result,
// and reportable condition with its rule summaries.
func (r *SQLServerRepository) SaveWithExtendedMetadata(ctx context.Context, ecrID string, meta ExtendedMetadata) error {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dbo.ECR_DATA (
			eICR_ID, set_id, fhir_reference_link, last_name, first_name,
			birth_date, gender, birth_sex, gender_identity, race, ethnicity,
			latitude, longitude, homelessness_status, disabilities,
			tribal_affiliation, tribal_enrollment_status, current_job_title,
			current_job_industry, usual_occupation, usual_industry,
			preferred_language, pregnancy_status, rr_id, processing_status,
			eicr_version_number, authoring_date, authoring_provider,
			provider_id, facility_id, facility_name, encounter_type,
			encounter_start_date, encounter_end_date, reason_for_visit,
			active_problems
		) VALUES (
			@eICR_ID, @set_id, NULL, @last_name, @first_name,
			@birth_date, @gender, @birth_sex, @gender_identity, @race, @ethnicity,
			@latitude, @longitude, @homelessness_status, @disabilities,
			@tribal_affiliation, @tribal_enrollment_status, @current_job_title,
			@current_job_industry, @usual_occupation, @usual_industry,
			@preferred_language, @pregnancy_status, @rr_id, @processing_status,
			@eicr_version_number, @authoring_date, @authoring_provider,
			@provider_id, @facility_id, @facility_name, @encounter_type,
			@encounter_start_date, @encounter_end_date, @reason_for_visit,
			@active_problems
		)`,
		sql.Named("eICR_ID", ecrID),
		sql.Named("set_id", emptyNull(meta.EicrSetID)),
		sql.Named("last_name", emptyNull(meta.LastName)),
		sql.Named("first_name", emptyNull(meta.FirstName)),
		sql.Named("birth_date", emptyNull(meta.BirthDate)),
		sql.Named("gender", emptyNull(meta.Gender)),
		sql.Named("birth_sex", emptyNull(meta.BirthSex)),
		sql.Named("gender_identity", emptyNull(meta.GenderIdentity)),
		sql.Named("race", emptyNull(meta.Race)),
		sql.Named("ethnicity", emptyNull(meta.Ethnicity)),
		sql.Named("latitude", floatNull(meta.Latitude)),
		sql.Named("longitude", floatNull(meta.Longitude)),
		sql.Named("homelessness_status", emptyNull(meta.HomelessnessStatus)),
		sql.Named("disabilities", emptyNull(meta.Disabilities)),
		sql.Named("tribal_affiliation", emptyNull(meta.TribalAffiliation)),
		sql.Named("tribal_enrollment_status", emptyNull(meta.TribalEnrollmentStatus)),
		sql.Named("current_job_title", emptyNull(meta.CurrentJobTitle)),
		sql.Named("current_job_industry", emptyNull(meta.CurrentJobIndustry)),
		sql.Named("usual_occupation", emptyNull(meta.UsualOccupation)),
		sql.Named("usual_industry", emptyNull(meta.UsualIndustry)),
		sql.Named("preferred_language", emptyNull(meta.PreferredLanguage)),
		sql.Named("pregnancy_status", emptyNull(meta.PregnancyStatus)),
		sql.Named("rr_id", emptyNull(meta.RRID)),
		sql.Named("processing_status", emptyNull(meta.ProcessingStatus)),
		sql.Named("eicr_version_number", emptyNull(meta.EicrVersionNumber)),
		sql.Named("authoring_date", emptyNull(meta.AuthoringDatetime)),
		sql.Named("authoring_provider", emptyNull(meta.ProviderID)),
		sql.Named("provider_id", emptyNull(meta.ProviderID)),
		sql.Named("facility_id", emptyNull(meta.FacilityIDNumber)),
		sql.Named("facility_name", emptyNull(meta.FacilityName)),
		sql.Named("encounter_type", emptyNull(meta.EncounterType)),
		sql.Named("encounter_start_date", emptyNull(meta.EncounterStartDate)),
		sql.Named("encounter_end_date", emptyNull(meta.EncounterEndDate)),
		sql.Named("reason_for_visit", emptyNull(meta.ReasonForVisit)),
		sql.Named("active_problems", emptyNull(strings.Join(meta.ActiveProblems, ","))))
	if err != nil {
		return errors.Wrap(err, "failed to save ecr metadata")
	}

	for _, addr := range meta.PatientAddresses {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dbo.patient_address (
				UUID, [use], type, text, line, city, district, state,
				postal_code, country, period_start, period_end, eICR_ID
			) VALUES (
				@UUID, @use, @type, @text, @line, @city, @district, @state,
				@postal_code, @country, @period_start, @period_end, @eICR_ID
			)`,
			sql.Named("UUID", uuid.New().String()),
			sql.Named("use", emptyNull(addr.Use)),
			sql.Named("type", emptyNull(addr.Type)),
			sql.Named("text", emptyNull(addr.Text)),
			sql.Named("line", emptyNull(strings.Join(addr.Line, "\n"))),
			sql.Named("city", emptyNull(addr.City)),
			sql.Named("district", emptyNull(addr.District)),
			sql.Named("state", emptyNull(addr.State)),
			sql.Named("postal_code", emptyNull(addr.PostalCode)),
			sql.Named("country", emptyNull(addr.Country)),
			sql.Named("period_start", emptyNull(addr.PeriodStart)),
			sql.Named("period_end", emptyNull(addr.PeriodEnd)),
			sql.Named("eICR_ID", ecrID))
		if err != nil {
			return errors.Wrap(err, "failed to save patient address")
		}
	}

	for _, lab := range meta.Labs {
		labID := lab.UUID
		if labID == "" {
			labID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dbo.ecr_labs VALUES (
				@UUID, @eICR_ID, @test_type, @test_type_code, @test_type_system,
				@test_result_qualitative, @test_result_quantitative,
				@test_result_units, @test_result_code, @test_result_code_display,
				@test_result_code_system, @test_result_interpretation,
				@test_result_interpretation_code, @test_result_interpretation_system,
				@test_result_ref_range_low_value, @test_result_ref_range_low_units,
				@test_result_ref_range_high_value, @test_result_ref_range_high_units,
				@specimen_type, @specimen_collection_date, @performing_lab
			)`,
			sql.Named("UUID", labID),
			sql.Named("eICR_ID", ecrID),
			sql.Named("test_type", emptyNull(lab.TestType)),
			sql.Named("test_type_code", emptyNull(lab.TestTypeCode)),
			sql.Named("test_type_system", emptyNull(lab.TestTypeSystem)),
			sql.Named("test_result_qualitative", emptyNull(lab.TestResultQualitative)),
			sql.Named("test_result_quantitative", floatNull(lab.TestResultQuantitative)),
			sql.Named("test_result_units", emptyNull(lab.TestResultUnits)),
			sql.Named("test_result_code", emptyNull(lab.TestResultCode)),
			sql.Named("test_result_code_display", emptyNull(lab.TestResultCodeDisplay)),
			sql.Named("test_result_code_system", emptyNull(lab.TestResultCodeSystem)),
			sql.Named("test_result_interpretation", emptyNull(lab.TestResultInterpretation)),
			sql.Named("test_result_interpretation_code", emptyNull(lab.TestResultInterpretationCode)),
			sql.Named("test_result_interpretation_system", emptyNull(lab.TestResultInterpretationSystem)),
			sql.Named("test_result_ref_range_low_value", emptyNull(lab.TestResultRefRangeLow)),
			sql.Named("test_result_ref_range_low_units", emptyNull(lab.TestResultRefRangeLowUnits)),
			sql.Named("test_result_ref_range_high_value", emptyNull(lab.TestResultRefRangeHigh)),
			sql.Named("test_result_ref_range_high_units", emptyNull(lab.TestResultRefRangeHighUnits)),
			sql.Named("specimen_type", emptyNull(lab.SpecimenType)),
			sql.Named("specimen_collection_date", emptyNull(lab.SpecimenCollectionDate)),
			sql.Named("performing_lab", emptyNull(lab.PerformingLab)))
		if err != nil {
			return errors.Wrap(err, "failed to save lab result")
		}
	}

	for _, rr := range meta.RR {
		conditionID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dbo.ecr_rr_conditions VALUES (@UUID, @eICR_ID, @condition)`,
			sql.Named("UUID", conditionID),
			sql.Named("eICR_ID", ecrID),
			sql.Named("condition", rr.Condition))
		if err != nil {
			return errors.Wrap(err, "failed to save reportable condition")
		}

		for _, rule := range rr.RuleSummaries {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO dbo.ecr_rr_rule_summaries VALUES (@UUID, @ECR_RR_CONDITIONS_ID, @rule_summary)`,
				sql.Named("UUID", uuid.New().String()),
				sql.Named("ECR_RR_CONDITIONS_ID", conditionID),
				sql.Named("rule_summary", rule.Summary))
			if err != nil {
				return errors.Wrap(err, "failed to save rule summary")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	metrics.RecordDBQuery("save_extended_metadata", time.Since(start))
	return nil
}

// sqlserverWhere builds the list query's WHERE clause with named parameters.
// SQL Server has no ILIKE; the schema's default collation is case
// insensitive, so LIKE matches the PostgreSQL behavior.
func sqlserverWhere(params ListParams, args *[]any) string {
	n := 0
	next := func(v any) string {
		n++
		name := fmt.Sprintf("p%d", n)
		*args = append(*args, sql.Named(name, v))
		return "@" + name
	}

	var conditions []string
	if params.Search != "" {
		ph := next("%" + params.Search + "%")
		conditions = append(conditions,
			fmt.Sprintf("(ed.first_name LIKE %s OR ed.last_name LIKE %s)", ph, ph))
	}

	conditions = append(conditions,
		fmt.Sprintf("ed.date_created >= %s AND ed.date_created <= %s",
			next(params.Period.Start), next(params.Period.End)))

	if params.Conditions != nil {
		if allEmpty(params.Conditions) {
			conditions = append(conditions,
				"ed.eICR_ID NOT IN (SELECT DISTINCT erc_sub.eICR_ID FROM ecr_rr_conditions erc_sub WHERE erc_sub.[condition] IS NOT NULL)")
		} else {
			var ors []string
			for _, c := range params.Conditions {
				ors = append(ors, fmt.Sprintf("erc_sub.[condition] LIKE %s", next("%"+c+"%")))
			}
			conditions = append(conditions, fmt.Sprintf(
				"ed.eICR_ID IN (SELECT DISTINCT ed_sub.eICR_ID FROM ecr_data ed_sub LEFT JOIN ecr_rr_conditions erc_sub ON ed_sub.eICR_ID = erc_sub.eICR_ID WHERE erc_sub.[condition] IS NOT NULL AND (%s))",
				strings.Join(ors, " OR ")))
		}
	}

	return strings.Join(conditions, " AND ")
}

// sqlserverSort renders the validated ORDER BY clause. The extended schema
// has no report_date column; encounter_start_date carries that role. Every
// ordering breaks ties on the eICR id for deterministic pagination.
func sqlserverSort(column, direction string) string {
	column, direction = normalizeSort(column, direction)
	switch column {
	case "patient":
		return fmt.Sprintf("ORDER BY ed.last_name %s, ed.first_name %s, ed.eICR_ID ASC", direction, direction)
	case "report_date":
		column = "encounter_start_date"
	}
	return fmt.Sprintf("ORDER BY ed.%s %s, ed.eICR_ID ASC", column, direction)
}

// splitAggregate turns a STRING_AGG result into its parts.
func splitAggregate(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func emptyNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatNull(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
