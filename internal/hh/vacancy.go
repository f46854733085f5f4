package hh

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

// NotSpecified is the sentinel used when upstream omits a text field. The
// message formatter relies on it appearing verbatim, so an absent skill list
// and an explicit "not specified" are deliberately not distinguished.
const NotSpecified = "Не указано"

// NamedRef is a nested hh.ru object of which only the name matters.
type NamedRef struct {
	Name string `json:"name"`
}

// Salary mirrors the hh.ru salary object. Either bound may be null.
type Salary struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// KeySkills accepts both shapes hh.ru is known to return: a list of tagged
// objects ([{"name": "SQL"}, ...]) or a comma-delimited string.
type KeySkills []string

func (k *KeySkills) UnmarshalJSON(data []byte) error {
	var tagged []NamedRef
	if err := json.Unmarshal(data, &tagged); err == nil {
		skills := make([]string, 0, len(tagged))
		for _, t := range tagged {
			skills = append(skills, t.Name)
		}
		*k = skills
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*k = strings.Split(joined, ",")
		return nil
	}
	// Anything else (null included) means no skills.
	*k = nil
	return nil
}

// Vacancy mirrors the hh.ru vacancy detail payload.
type Vacancy struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Schedule          *NamedRef  `json:"schedule"`
	Experience        *NamedRef  `json:"experience"`
	Area              *NamedRef  `json:"area"`
	Employer          *NamedRef  `json:"employer"`
	Type              *NamedRef  `json:"type"`
	Salary            *Salary    `json:"salary"`
	AlternateURL      string     `json:"alternate_url"`
	KeySkills         KeySkills  `json:"key_skills"`
	ProfessionalRoles []NamedRef `json:"professional_roles"`
	PublishedAt       string     `json:"published_at"`
}

// expCategories maps the four fixed hh.ru experience labels to an ordinal
// category. Anything unrecognized falls back to 0.
var expCategories = map[string]int{
	"Нет опыта":          0,
	"От 1 года до 3 лет": 1,
	"От 3 до 6 лет":      2,
	"Более 6 лет":        3,
}

// hh.ru timestamps use a numeric zone offset without a colon.
const hhTimeLayout = "2006-01-02T15:04:05-0700"

// Normalize converts a raw hh.ru payload into the internal vacancy shape.
// Missing nested objects become nil fields, an unparseable published_at falls
// back to the current UTC time, and the skill list collapses to a single
// comma-joined string with the NotSpecified sentinel when empty. Grade and
// predicted salary are filled later by the sync engine.
func Normalize(item *Vacancy) (*model.Vacancy, error) {
	id, err := strconv.ParseInt(item.ID, 10, 64)
	if err != nil {
		return nil, err
	}

	experience := "Нет опыта"
	if item.Experience != nil {
		experience = item.Experience.Name
	}

	skills := NotSpecified
	if len(item.KeySkills) > 0 {
		skills = strings.Join(item.KeySkills, ", ")
	}

	var roles *string
	if len(item.ProfessionalRoles) > 0 {
		names := make([]string, 0, len(item.ProfessionalRoles))
		for _, r := range item.ProfessionalRoles {
			names = append(names, r.Name)
		}
		joined := strings.Join(names, ", ")
		roles = &joined
	}

	v := &model.Vacancy{
		ID:                id,
		Name:              item.Name,
		Schedule:          refName(item.Schedule),
		Experience:        experience,
		ExperienceCat:     expCategories[experience],
		City:              refName(item.Area),
		Employer:          refName(item.Employer),
		Type:              refName(item.Type),
		KeySkills:         skills,
		ProfessionalRoles: roles,
		Description:       stripHTML(item.Description),
		PublishedAt:       parsePublishedAt(item.PublishedAt),
	}
	if item.Salary != nil {
		v.SalaryFrom = item.Salary.From
		v.SalaryTo = item.Salary.To
	}
	if item.AlternateURL != "" {
		url := item.AlternateURL
		v.URL = &url
	}
	return v, nil
}

func refName(r *NamedRef) *string {
	if r == nil {
		return nil
	}
	name := r.Name
	return &name
}

func parsePublishedAt(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(hhTimeLayout, s); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		log.Printf("[hh] unparseable published_at %q, using current time", s)
	}
	return time.Now().UTC()
}

// stripHTML drops markup from a vacancy description, keeping the text nodes.
func stripHTML(s string) string {
	if s == "" {
		return s
	}
	tz := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tz.Text())
		}
	}
}
