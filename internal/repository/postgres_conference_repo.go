package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/confman/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

const conferenceColumns = `c.id, c.owner_id, c.status, c.is_public, c.is_deleted,
	c.title, c.acronym, c.description,
	c.location_venue, c.location_city, c.location_country,
	c.call_for_papers, c.website_url,
	c.start_date, c.end_date, c.abstract_deadline, c.submission_deadline, c.camera_ready_deadline,
	c.research_areas, c.created_at, c.updated_at`

// PostgresConferenceRepo はPostgreSQLを使用したカンファレンスリポジトリ。
type PostgresConferenceRepo struct {
	db *sql.DB
}

// NewPostgresConferenceRepo はPostgresConferenceRepoを生成する。
func NewPostgresConferenceRepo(db *sql.DB) *PostgresConferenceRepo {
	return &PostgresConferenceRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConference(s rowScanner, extra ...any) (*model.Conference, error) {
	c := &model.Conference{}
	var (
		status     string
		websiteURL sql.NullString
		areas      []byte
	)
	dest := []any{
		&c.ID, &c.OwnerID, &status, &c.IsPublic, &c.IsDeleted,
		&c.Title, &c.Acronym, &c.Description,
		&c.LocationVenue, &c.LocationCity, &c.LocationCountry,
		&c.CallForPapers, &websiteURL,
		&c.StartDate, &c.EndDate, &c.AbstractDeadline, &c.SubmissionDeadline, &c.CameraReadyDeadline,
		&areas, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Status = model.ConferenceStatus(status)
	c.WebsiteURL = websiteURL.String
	c.ResearchAreas = model.ResearchAreas{}
	if len(areas) > 0 {
		if err := json.Unmarshal(areas, &c.ResearchAreas); err != nil {
			return nil, fmt.Errorf("研究分野のデコードに失敗しました: %w", err)
		}
	}
	return c, nil
}

// Create はカンファレンスを作成する。
func (r *PostgresConferenceRepo) Create(ctx context.Context, c *model.Conference) error {
	areas := c.ResearchAreas
	if areas == nil {
		areas = model.ResearchAreas{}
	}
	areasJSON, err := json.Marshal(areas)
	if err != nil {
		return fmt.Errorf("研究分野のエンコードに失敗しました: %w", err)
	}

	var websiteURL sql.NullString
	if c.WebsiteURL != "" {
		websiteURL = sql.NullString{String: c.WebsiteURL, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO conferences (
			id, owner_id, status, is_public, is_deleted,
			title, acronym, description,
			location_venue, location_city, location_country,
			call_for_papers, website_url,
			start_date, end_date, abstract_deadline, submission_deadline, camera_ready_deadline,
			research_areas, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		c.ID, c.OwnerID, string(c.Status), c.IsPublic, c.IsDeleted,
		c.Title, c.Acronym, c.Description,
		c.LocationVenue, c.LocationCity, c.LocationCountry,
		c.CallForPapers, websiteURL,
		c.StartDate, c.EndDate, c.AbstractDeadline, c.SubmissionDeadline, c.CameraReadyDeadline,
		areasJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("カンファレンスの作成に失敗しました: %w", ErrDuplicateID)
		}
		return fmt.Errorf("カンファレンスの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのカンファレンスをメインチェアの連絡先付きで取得する。
func (r *PostgresConferenceRepo) FindByID(ctx context.Context, id string) (*model.ConferenceWithOwner, error) {
	var (
		ownerID   sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		email     sql.NullString
	)
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conferenceColumns+`, u.id, u.first_name, u.last_name, u.email
		 FROM conferences c
		 LEFT JOIN users u ON u.id = c.owner_id
		 WHERE c.id = $1`,
		id,
	)
	c, err := scanConference(row, &ownerID, &firstName, &lastName, &email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カンファレンスの取得に失敗しました: %w", err)
	}

	result := &model.ConferenceWithOwner{Conference: *c}
	if ownerID.Valid {
		result.Owner = &model.OwnerContact{
			ID:        ownerID.String,
			FirstName: firstName.String,
			LastName:  lastName.String,
			Email:     email.String,
		}
	}
	return result, nil
}

// List はフィルタに一致する未削除のカンファレンスを返す。
func (r *PostgresConferenceRepo) List(ctx context.Context, filter model.ConferenceFilter) ([]*model.Conference, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("カンファレンス一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var conferences []*model.Conference
	for rows.Next() {
		c, err := scanConference(rows)
		if err != nil {
			return nil, fmt.Errorf("カンファレンス行の読み取りに失敗しました: %w", err)
		}
		conferences = append(conferences, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カンファレンス一覧の走査に失敗しました: %w", err)
	}
	return conferences, nil
}

// buildListQuery はフィルタからSELECT文と引数を組み立てる。
// is_deleted = false は常に条件に含まれる。
func buildListQuery(filter model.ConferenceFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + conferenceColumns + ` FROM conferences c WHERE c.is_deleted = false`)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&sb, ` AND c.status = $%d`, len(args))
	}
	if filter.PublicOnly {
		sb.WriteString(` AND c.is_public = true`)
	}
	switch filter.OrderBy {
	case model.OrderByCreatedAtDesc:
		sb.WriteString(` ORDER BY c.created_at DESC, c.id`)
	default:
		sb.WriteString(` ORDER BY c.start_date ASC, c.id`)
	}
	return sb.String(), args
}

// TransitionStatus は status = from かつ未削除の場合に限り status を to に更新する。
// 単一のUPDATE文で条件判定と更新を行うため、同時実行時は先にコミットした側だけが成功する。
func (r *PostgresConferenceRepo) TransitionStatus(ctx context.Context, id string, from, to model.ConferenceStatus) (*model.Conference, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE conferences c
		 SET status = $3, updated_at = now()
		 WHERE c.id = $1 AND c.status = $2 AND c.is_deleted = false
		 RETURNING `+conferenceColumns,
		id, string(from), string(to),
	)
	c, err := scanConference(row)
	if err == sql.ErrNoRows {
		return nil, r.explainNoUpdate(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("カンファレンスの状態更新に失敗しました: %w", err)
	}
	return c, nil
}

// SoftDelete は未削除の場合に限り is_deleted を true に更新する。
func (r *PostgresConferenceRepo) SoftDelete(ctx context.Context, id string) (*model.Conference, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE conferences c
		 SET is_deleted = true, updated_at = now()
		 WHERE c.id = $1 AND c.is_deleted = false
		 RETURNING `+conferenceColumns,
		id,
	)
	c, err := scanConference(row)
	if err == sql.ErrNoRows {
		return nil, r.explainNoUpdate(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("カンファレンスの論理削除に失敗しました: %w", err)
	}
	return c, nil
}

// explainNoUpdate は条件付きUPDATEが0行だった理由を判定する。
// レコードが存在しなければnil（呼び出し側はnilレコードとして扱う）、存在すればErrConditionFailedを返す。
func (r *PostgresConferenceRepo) explainNoUpdate(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conferences WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("カンファレンスの存在確認に失敗しました: %w", err)
	}
	if !exists {
		return nil
	}
	return ErrConditionFailed
}

// compile-time interface check
var _ ConferenceRepository = (*PostgresConferenceRepo)(nil)
