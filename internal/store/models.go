package store

import (
	"fmt"
	"strings"
	"time"
)

// Job вакансия, для которой проводится интервью
type Job struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location"`
	Type            string    `json:"type"`
	Salary          string    `json:"salary"`
	Description     string    `json:"description"`
	Requirements    []string  `json:"requirements"`
	Skills          []string  `json:"skills"`
	ExperienceLevel string    `json:"experience_level"`
	CreatedAt       time.Time `json:"created_at"`
}

// JobDescription текст вакансии, который получает AI-бэкенд
func (j *Job) JobDescription() string {
	lines := []string{
		fmt.Sprintf("Title: %s", j.Title),
		fmt.Sprintf("Company: %s", j.Company),
		fmt.Sprintf("Location: %s", j.Location),
		fmt.Sprintf("Type: %s", j.Type),
		fmt.Sprintf("Salary: %s", j.Salary),
		fmt.Sprintf("Description: %s", j.Description),
		fmt.Sprintf("Requirements: %s", strings.Join(j.Requirements, ", ")),
		fmt.Sprintf("Skills: %s", strings.Join(j.Skills, ", ")),
		fmt.Sprintf("Experience Level: %s", j.ExperienceLevel),
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Application отклик кандидата на вакансию
type Application struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	StatusApplied        = "applied"
	StatusInterviewing   = "interviewing"
	StatusResultsPending = "results_pending"
)
