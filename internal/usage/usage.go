// Package usage records per-user token consumption.
package usage

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"
)

// Record is append-only.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"type:char(36);index:idx_token_usage_user_ts,priority:1;not null" json:"user_id"`
	TokensUsed int       `gorm:"not null" json:"tokens_used"`
	Timestamp  time.Time `gorm:"index:idx_token_usage_user_ts,priority:2;not null" json:"timestamp"`
}

func (Record) TableName() string { return "token_usage" }

// Event is the queued form of a Record.
type Event struct {
	UserID     string    `json:"user_id"`
	TokensUsed int       `json:"tokens_used"`
	Timestamp  time.Time `json:"timestamp"`
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Insert(ctx context.Context, rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListRecent returns newest first.
func (r *Repo) ListRecent(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Record
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Total sums tokens since the given time; a zero since means all time.
func (r *Repo) Total(ctx context.Context, userID string, since time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&Record{}).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	var total int64
	if err := q.Select("COALESCE(SUM(tokens_used), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// MonthlyAverage describes the per-record spread of one calendar month
// ("YYYY-MM") across all users. StdDevTokens is the population deviation.
type MonthlyAverage struct {
	Month        string  `json:"month"`
	AvgTokens    float64 `json:"avg_tokens"`
	StdDevTokens float64 `json:"std_dev_tokens"`
}

type MonthlyTotal struct {
	Month       string `json:"month"`
	TotalTokens int64  `json:"total_tokens"`
}

// monthExpr truncates timestamp to "YYYY-MM" in the connected dialect.
// SQLite keeps times as text, so the prefix is the month.
func (r *Repo) monthExpr() string {
	switch r.db.Dialector.Name() {
	case "postgres":
		return `to_char("timestamp", 'YYYY-MM')`
	case "mysql":
		return "DATE_FORMAT(`timestamp`, '%Y-%m')"
	default:
		return "substr(timestamp, 1, 7)"
	}
}

type monthlyRow struct {
	Month     string
	AvgTokens float64
	AvgSquare float64
}

// MonthlyAverage returns one row per month, oldest first.
func (r *Repo) MonthlyAverage(ctx context.Context) ([]MonthlyAverage, error) {
	var rows []monthlyRow
	month := r.monthExpr()
	if err := r.db.WithContext(ctx).Model(&Record{}).
		Select(month + " AS month, AVG(tokens_used) AS avg_tokens, AVG(1.0 * tokens_used * tokens_used) AS avg_square").
		Group(month).
		Order("month").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]MonthlyAverage, 0, len(rows))
	for _, row := range rows {
		variance := row.AvgSquare - row.AvgTokens*row.AvgTokens
		out = append(out, MonthlyAverage{
			Month:        row.Month,
			AvgTokens:    row.AvgTokens,
			StdDevTokens: math.Sqrt(math.Max(variance, 0)),
		})
	}
	return out, nil
}

// UserMonthly sums a user's tokens per month, oldest first.
func (r *Repo) UserMonthly(ctx context.Context, userID string) ([]MonthlyTotal, error) {
	out := []MonthlyTotal{}
	month := r.monthExpr()
	if err := r.db.WithContext(ctx).Model(&Record{}).
		Select(month+" AS month, COALESCE(SUM(tokens_used), 0) AS total_tokens").
		Where("user_id = ?", userID).
		Group(month).
		Order("month").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DBSink writes usage synchronously.
type DBSink struct {
	repo *Repo
}

func NewDBSink(repo *Repo) *DBSink {
	return &DBSink{repo: repo}
}

func (s *DBSink) RecordUsage(ctx context.Context, userID string, tokens int) error {
	return s.repo.Insert(ctx, &Record{UserID: userID, TokensUsed: tokens})
}

// Store persists a queued event.
func (r *Repo) Store(ctx context.Context, ev Event) error {
	return r.Insert(ctx, &Record{UserID: ev.UserID, TokensUsed: ev.TokensUsed, Timestamp: ev.Timestamp})
}
