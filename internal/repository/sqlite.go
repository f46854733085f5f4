package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

// sqliteTimeLayout is fixed-width so that lexicographic comparison of stored
// timestamps matches chronological order. All values are stored in UTC.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStorage keeps users and vacancies in a local SQLite database. It is
// used for running without Postgres and by the repository tests.
type SQLiteStorage struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	s := &SQLiteStorage{path: path}
	if err := s.connect(); err != nil {
		return nil, err
	}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) connect() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite db: %w", err)
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStorage) init() error {
	db := s.getDB()
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			chat_id INTEGER PRIMARY KEY,
			update_interval INTEGER DEFAULT 60,
			last_check TEXT
		)`); err != nil {
		return err
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vacancies_hh (
			id INTEGER PRIMARY KEY,
			vacancy_name TEXT,
			schedule TEXT,
			experience TEXT,
			experience_cat INTEGER,
			city TEXT,
			employer TEXT,
			salary_from INTEGER,
			salary_to INTEGER,
			type TEXT,
			url TEXT,
			key_skills TEXT,
			professional_role TEXT,
			description TEXT,
			published_at TEXT,
			grade TEXT,
			predicted_salary INTEGER
		)`)
	return err
}

func (s *SQLiteStorage) getDB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *SQLiteStorage) Reconnect(ctx context.Context) error {
	old := s.getDB()
	if err := s.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *SQLiteStorage) Close() {
	if db := s.getDB(); db != nil {
		db.Close()
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t, nil
}

func (s *SQLiteStorage) GetAllUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT chat_id, update_interval, last_check FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStorage) GetUser(ctx context.Context, chatID int64) (*model.User, error) {
	row := s.getDB().QueryRowContext(ctx,
		`SELECT chat_id, update_interval, last_check FROM users WHERE chat_id = ?`, chatID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var lastCheck string
	if err := row.Scan(&u.ChatID, &u.UpdateInterval, &lastCheck); err != nil {
		return nil, err
	}
	t, err := parseTime(lastCheck)
	if err != nil {
		return nil, err
	}
	u.LastCheck = t
	return &u, nil
}

func (s *SQLiteStorage) AddUser(ctx context.Context, chatID int64) error {
	_, err := s.getDB().ExecContext(ctx, `
		INSERT INTO users (chat_id, last_check) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET last_check = excluded.last_check`,
		chatID, formatTime(time.Now()))
	return err
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, chatID int64) error {
	_, err := s.getDB().ExecContext(ctx, `DELETE FROM users WHERE chat_id = ?`, chatID)
	return err
}

func (s *SQLiteStorage) UpdateUserInterval(ctx context.Context, chatID int64, minutes int) error {
	_, err := s.getDB().ExecContext(ctx, `
		INSERT INTO users (chat_id, update_interval, last_check) VALUES (?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET update_interval = excluded.update_interval`,
		chatID, minutes, formatTime(time.Now()))
	return err
}

func (s *SQLiteStorage) UpdateLastCheck(ctx context.Context, chatID int64, t time.Time) error {
	_, err := s.getDB().ExecContext(ctx,
		`UPDATE users SET last_check = ? WHERE chat_id = ?`, formatTime(t), chatID)
	return err
}

func (s *SQLiteStorage) GetExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.getDB().QueryContext(ctx, `SELECT id FROM vacancies_hh`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *SQLiteStorage) InsertVacancy(ctx context.Context, v *model.Vacancy) error {
	_, err := s.getDB().ExecContext(ctx, `
		INSERT OR IGNORE INTO vacancies_hh (`+vacancyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Schedule, v.Experience, v.ExperienceCat, v.City, v.Employer,
		v.SalaryFrom, v.SalaryTo, v.Type, v.URL, v.KeySkills, v.ProfessionalRoles,
		v.Description, formatTime(v.PublishedAt), v.Grade, v.PredictedSalary)
	return err
}

func (s *SQLiteStorage) GetNewVacancies(ctx context.Context, since time.Time) ([]*model.Vacancy, error) {
	rows, err := s.getDB().QueryContext(ctx, `
		SELECT `+vacancyColumns+` FROM vacancies_hh
		WHERE published_at > ? ORDER BY published_at`, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanVacancyRows(rows)
}

func (s *SQLiteStorage) GetRecentVacancies(ctx context.Context, limit int) ([]*model.Vacancy, error) {
	rows, err := s.getDB().QueryContext(ctx, `
		SELECT `+vacancyColumns+` FROM vacancies_hh
		ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanVacancyRows(rows)
}

func (s *SQLiteStorage) GetLastPublishedTime(ctx context.Context) (time.Time, error) {
	var last sql.NullString
	err := s.getDB().QueryRowContext(ctx,
		`SELECT MAX(published_at) FROM vacancies_hh`).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Now().UTC(), nil
	}
	return parseTime(last.String)
}

func (s *SQLiteStorage) scanVacancyRows(rows *sql.Rows) ([]*model.Vacancy, error) {
	var out []*model.Vacancy
	for rows.Next() {
		var v model.Vacancy
		var publishedAt string
		if err := rows.Scan(&v.ID, &v.Name, &v.Schedule, &v.Experience, &v.ExperienceCat,
			&v.City, &v.Employer, &v.SalaryFrom, &v.SalaryTo, &v.Type, &v.URL,
			&v.KeySkills, &v.ProfessionalRoles, &v.Description, &publishedAt,
			&v.Grade, &v.PredictedSalary); err != nil {
			return nil, err
		}
		t, err := parseTime(publishedAt)
		if err != nil {
			return nil, err
		}
		v.PublishedAt = t
		out = append(out, &v)
	}
	return out, rows.Err()
}
