package model

import "time"

// Vacancy is a normalized job posting from hh.ru. Pointer fields map to
// nullable columns: the upstream payload may omit any of them.
// Grade and PredictedSalary are filled by the ML service; PredictedSalary
// is only set when the vacancy has no stated lower salary bound.
type Vacancy struct {
	ID                int64     `json:"id"`
	Name              string    `json:"vacancy_name"`
	Schedule          *string   `json:"schedule"`
	Experience        string    `json:"experience"`
	ExperienceCat     int       `json:"experience_cat"`
	City              *string   `json:"city"`
	Employer          *string   `json:"employer"`
	SalaryFrom        *int      `json:"salary_from"`
	SalaryTo          *int      `json:"salary_to"`
	Type              *string   `json:"type"`
	URL               *string   `json:"url"`
	KeySkills         string    `json:"key_skills"`
	ProfessionalRoles *string   `json:"professional_role"`
	Description       string    `json:"description"`
	PublishedAt       time.Time `json:"published_at"`
	Grade             string    `json:"grade"`
	PredictedSalary   *int      `json:"predicted_salary"`
}
