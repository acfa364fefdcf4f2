package mysql

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"review_sync/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return string(b)
}

func sigHash(sig string) string {
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// RecordRun stores the run summary and its merged reviews in one transaction.
func (r *Repo) RecordRun(ctx context.Context, run domain.Run, reviews []domain.StoredReview) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cands, _ := json.Marshal(run.Candidates)
	res, err := tx.ExecContext(ctx, insertRunSQL,
		run.AppID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		string(cands),
		run.Rejected,
		run.Merged,
		run.Attempts,
		valInt(run.Accepted),
		run.Outcome,
		valStr(run.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(reviews); start += reviewBatchSize {
		end := min(start+reviewBatchSize, len(reviews))
		if err := insertReviews(ctx, tx, id, start, reviews[start:end]); err != nil {
			return 0, fmt.Errorf("insert reviews for run %d: %w", id, err)
		}
	}
	return id, tx.Commit()
}

func insertReviews(ctx context.Context, tx *sql.Tx, runID int64, offset int, rs []domain.StoredReview) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*15) // 15 params per row
	for i, sr := range rs {
		rv := sr.Review
		values = append(values, reviewRowPlaceholders)
		args = append(args,
			runID,                            // run_id
			offset+i+1,                       // seq (1-based, merge order)
			sigHash(sr.Signature),            // sig_hash
			sr.Signature,                     // signature
			string(sr.Source),                // source
			valStr(rv.SourceID),              // source_id
			rv.Author,                        // author
			valStr(rv.Title),                 // title
			rv.Text,                          // text
			valInt(rv.Rating),                // rating
			valTime(rv.ReviewDate),           // review_date
			valStr(rv.Version),               // version
			valStr(rv.DeveloperResponseText), // developer_response_text
			valTime(rv.DeveloperResponseAt),  // developer_response_at
			valJSON(rv.Raw),                  // raw
		)
	}
	_, err := tx.ExecContext(ctx, insertReviewsPrefix+strings.Join(values, ","), args...)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(s rowScanner) (domain.Run, error) {
	var run domain.Run
	var cands []byte
	var accepted sql.NullInt64
	var errText sql.NullString
	if err := s.Scan(
		&run.ID,
		&run.AppID,
		&run.StartedAt,
		&run.FinishedAt,
		&cands,
		&run.Rejected,
		&run.Merged,
		&run.Attempts,
		&accepted,
		&run.Outcome,
		&errText,
	); err != nil {
		return domain.Run{}, err
	}
	_ = json.Unmarshal(cands, &run.Candidates)
	if accepted.Valid {
		n := int(accepted.Int64)
		run.Accepted = &n
	}
	if errText.Valid {
		s := errText.String
		run.Error = &s
	}
	return run, nil
}

func (r *Repo) GetRun(ctx context.Context, id int64) (domain.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, getRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	return run, err
}

func (r *Repo) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := r.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *Repo) ListRunReviews(ctx context.Context, runID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	after := 0
	if pg.Cursor != nil && *pg.Cursor != "" {
		n, err := strconv.Atoi(*pg.Cursor)
		if err != nil || n < 0 {
			return domain.ReviewsPage{}, fmt.Errorf("bad cursor %q", *pg.Cursor)
		}
		after = n
	}
	rows, err := r.db.QueryContext(ctx, listRunReviewsSQL, runID, after, pg.Limit+1)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.StoredReview
	var lastSeq int
	for rows.Next() {
		var (
			seq               int
			sr                    domain.StoredReview
			source            string
			sourceID, title       sql.NullString
			version, devText  sql.NullString
			rating                sql.NullInt64
			reviewDate, devAt sql.NullTime
			rawB                  sql.RawBytes
		)
		if err := rows.Scan(
			&seq,
			&sr.Signature,
			&source,
			&sourceID,
			&sr.Review.Author,
			&title,
			&sr.Review.Text,
			&rating,
			&reviewDate,
			&version,
			&devText,
			&devAt,
			&rawB,
		); err != nil {
			return domain.ReviewsPage{}, err
		}
		if len(out) == pg.Limit {
			// the extra row only proves there is a next page
			c := strconv.Itoa(lastSeq)
			return domain.ReviewsPage{Items: out, NextCursor: &c}, rows.Close()
		}

		sr.Source = domain.SourceTag(source)
		sr.Review.SourceTag = sr.Source
		sr.Review.SourceID = nullStr(sourceID)
		sr.Review.Title = nullStr(title)
		sr.Review.Version = nullStr(version)
		sr.Review.DeveloperResponseText = nullStr(devText)
		sr.Review.ReviewDate = nullTime(reviewDate)
		sr.Review.DeveloperResponseAt = nullTime(devAt)
		if rating.Valid {
			n := int(rating.Int64)
			sr.Review.Rating = &n
		}
		if len(rawB) > 0 {
			_ = json.Unmarshal(rawB, &sr.Review.Raw)
		}
		out = append(out, sr)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: out}, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
