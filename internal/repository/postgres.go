package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

const vacancyColumns = `id, vacancy_name, schedule, experience, experience_cat, city, employer,
	salary_from, salary_to, type, url, key_skills, professional_role,
	description, published_at, grade, predicted_salary`

// PostgresStorage stores users and vacancies in a Postgres database.
type PostgresStorage struct {
	mu      sync.RWMutex
	pool    *pgxpool.Pool
	connStr string
}

func NewPostgresStorage(ctx context.Context, connStr string) (*PostgresStorage, error) {
	s := &PostgresStorage{connStr: connStr}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(s.connStr)
	if err != nil {
		return fmt.Errorf("parse conn string: %w", err)
	}
	cfg.MinConns = 5
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping: %w", err)
	}
	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	return nil
}

func (s *PostgresStorage) init(ctx context.Context) error {
	pool := s.getPool()
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			chat_id BIGINT PRIMARY KEY,
			update_interval INT DEFAULT 60,
			last_check TIMESTAMPTZ DEFAULT NOW()
		)`); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vacancies_hh (
			id BIGINT PRIMARY KEY,
			vacancy_name TEXT,
			schedule TEXT,
			experience TEXT,
			experience_cat INT,
			city TEXT,
			employer TEXT,
			salary_from INT,
			salary_to INT,
			type TEXT,
			url TEXT,
			key_skills TEXT,
			professional_role TEXT,
			description TEXT,
			published_at TIMESTAMPTZ,
			grade TEXT,
			predicted_salary INT
		)`)
	return err
}

func (s *PostgresStorage) getPool() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Reconnect replaces the connection pool after a lost connection.
func (s *PostgresStorage) Reconnect(ctx context.Context) error {
	old := s.getPool()
	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *PostgresStorage) Close() {
	if pool := s.getPool(); pool != nil {
		pool.Close()
	}
}

func (s *PostgresStorage) GetAllUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.getPool().Query(ctx, `SELECT chat_id, update_interval, last_check FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ChatID, &u.UpdateInterval, &u.LastCheck); err != nil {
			return nil, err
		}
		u.LastCheck = u.LastCheck.UTC()
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) GetUser(ctx context.Context, chatID int64) (*model.User, error) {
	var u model.User
	err := s.getPool().QueryRow(ctx,
		`SELECT chat_id, update_interval, last_check FROM users WHERE chat_id = $1`, chatID).
		Scan(&u.ChatID, &u.UpdateInterval, &u.LastCheck)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.LastCheck = u.LastCheck.UTC()
	return &u, nil
}

func (s *PostgresStorage) AddUser(ctx context.Context, chatID int64) error {
	_, err := s.getPool().Exec(ctx, `
		INSERT INTO users (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO UPDATE SET last_check = NOW()`, chatID)
	return err
}

func (s *PostgresStorage) DeleteUser(ctx context.Context, chatID int64) error {
	_, err := s.getPool().Exec(ctx, `DELETE FROM users WHERE chat_id = $1`, chatID)
	return err
}

func (s *PostgresStorage) UpdateUserInterval(ctx context.Context, chatID int64, minutes int) error {
	_, err := s.getPool().Exec(ctx, `
		INSERT INTO users (chat_id, update_interval) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET update_interval = EXCLUDED.update_interval`,
		chatID, minutes)
	return err
}

func (s *PostgresStorage) UpdateLastCheck(ctx context.Context, chatID int64, t time.Time) error {
	_, err := s.getPool().Exec(ctx,
		`UPDATE users SET last_check = $1 WHERE chat_id = $2`, t.UTC(), chatID)
	return err
}

func (s *PostgresStorage) GetExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.getPool().Query(ctx, `SELECT id FROM vacancies_hh`)
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

func (s *PostgresStorage) InsertVacancy(ctx context.Context, v *model.Vacancy) error {
	_, err := s.getPool().Exec(ctx, `
		INSERT INTO vacancies_hh (`+vacancyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING`,
		v.ID, v.Name, v.Schedule, v.Experience, v.ExperienceCat, v.City, v.Employer,
		v.SalaryFrom, v.SalaryTo, v.Type, v.URL, v.KeySkills, v.ProfessionalRoles,
		v.Description, v.PublishedAt.UTC(), v.Grade, v.PredictedSalary)
	return err
}

func (s *PostgresStorage) GetNewVacancies(ctx context.Context, since time.Time) ([]*model.Vacancy, error) {
	rows, err := s.getPool().Query(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies_hh WHERE published_at > $1 ORDER BY published_at`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVacancies(rows)
}

func (s *PostgresStorage) GetRecentVacancies(ctx context.Context, limit int) ([]*model.Vacancy, error) {
	rows, err := s.getPool().Query(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies_hh ORDER BY published_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVacancies(rows)
}

func (s *PostgresStorage) GetLastPublishedTime(ctx context.Context) (time.Time, error) {
	var last *time.Time
	err := s.getPool().QueryRow(ctx, `SELECT MAX(published_at) FROM vacancies_hh`).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return time.Now().UTC(), nil
	}
	return last.UTC(), nil
}

func scanVacancies(rows pgx.Rows) ([]*model.Vacancy, error) {
	var out []*model.Vacancy
	for rows.Next() {
		var v model.Vacancy
		if err := rows.Scan(&v.ID, &v.Name, &v.Schedule, &v.Experience, &v.ExperienceCat,
			&v.City, &v.Employer, &v.SalaryFrom, &v.SalaryTo, &v.Type, &v.URL,
			&v.KeySkills, &v.ProfessionalRoles, &v.Description, &v.PublishedAt,
			&v.Grade, &v.PredictedSalary); err != nil {
			return nil, err
		}
		v.PublishedAt = v.PublishedAt.UTC()
		out = append(out, &v)
	}
	return out, rows.Err()
}
