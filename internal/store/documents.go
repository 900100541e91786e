package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateJob сохраняет вакансию. Пустой ID генерируется.
func (s *Store) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if job.Title == "" {
		return nil, errors.New("job title is required")
	}

	stored := *job
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = time.Now().UTC()

	requirements, err := json.Marshal(stored.Requirements)
	if err != nil {
		return nil, fmt.Errorf("marshal requirements: %w", err)
	}
	skills, err := json.Marshal(stored.Skills)
	if err != nil {
		return nil, fmt.Errorf("marshal skills: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, title, company, location, job_type, salary, description,
            requirements_json, skills_json, experience_level, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.Title,
		nullableString(stored.Company),
		nullableString(stored.Location),
		nullableString(stored.Type),
		nullableString(stored.Salary),
		nullableString(stored.Description),
		string(requirements),
		string(skills),
		nullableString(stored.ExperienceLevel),
		stored.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &stored, nil
}

// GetJob возвращает вакансию или ErrNotFound
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, company, location, job_type, salary, description,
            requirements_json, skills_json, experience_level, created_at
         FROM jobs WHERE id = ?`,
		id,
	)

	var (
		job                       Job
		company, location, jobTyp sql.NullString
		salary, description       sql.NullString
		requirements, skills      sql.NullString
		experience                sql.NullString
		createdAt                 string
	)
	err := row.Scan(&job.ID, &job.Title, &company, &location, &jobTyp, &salary, &description,
		&requirements, &skills, &experience, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job.Company = stringOrEmpty(company)
	job.Location = stringOrEmpty(location)
	job.Type = stringOrEmpty(jobTyp)
	job.Salary = stringOrEmpty(salary)
	job.Description = stringOrEmpty(description)
	job.ExperienceLevel = stringOrEmpty(experience)
	if requirements.Valid {
		if err := json.Unmarshal([]byte(requirements.String), &job.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshal requirements: %w", err)
		}
	}
	if skills.Valid {
		if err := json.Unmarshal([]byte(skills.String), &job.Skills); err != nil {
			return nil, fmt.Errorf("unmarshal skills: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = ts
	}
	return &job, nil
}

// CreateApplication создает отклик со статусом applied
func (s *Store) CreateApplication(ctx context.Context, userID, jobID string) (*Application, error) {
	if userID == "" || jobID == "" {
		return nil, errors.New("user id and job id are required")
	}

	now := time.Now().UTC()
	app := &Application{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobID:     jobID,
		Status:    StatusApplied,
		CreatedAt: now,
		UpdatedAt: now,
	}
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO applications (id, user_id, job_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID, app.UserID, app.JobID, app.Status, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

const applicationColumns = "id, user_id, job_id, status, created_at, updated_at"

// GetApplication возвращает отклик по ID
func (s *Store) GetApplication(ctx context.Context, id string) (*Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

// FindApplication ищет отклик пользователя на вакансию
func (s *Store) FindApplication(ctx context.Context, userID, jobID string) (*Application, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+applicationColumns+` FROM applications
         WHERE user_id = ? AND job_id = ? ORDER BY created_at LIMIT 1`,
		userID, jobID,
	)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application for user %s and job %s: %w", userID, jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

// UpdateStatus меняет статус отклика
func (s *Store) UpdateStatus(ctx context.Context, appID, status string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), appID,
	)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var (
		app                  Application
		createdAt, updatedAt string
	)
	if err := row.Scan(&app.ID, &app.UserID, &app.JobID, &app.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		app.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		app.UpdatedAt = ts
	}
	return &app, nil
}
