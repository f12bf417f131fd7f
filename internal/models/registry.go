package models

import "time"

// Qualification is one transcript row from the external academic registry.
type Qualification struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	Major          string `json:"major"`
	GraduationYear int    `json:"graduation_year"`
	Semester       int    `json:"semester"`
}

// Usable reports whether the row resolves to a qualification worth importing.
func (q Qualification) Usable() bool {
	return q.Degree != "" && q.GraduationYear > 0
}

// ExpectedGraduate is a registry search result for upcoming alumni.
type ExpectedGraduate struct {
	RegistryKey    string `json:"registry_key"`
	FullName       string `json:"full_name"`
	Major          string `json:"major"`
	GraduationYear int    `json:"graduation_year"`
}

// GraduateFilter narrows the expected-graduate search.
type GraduateFilter struct {
	Major          string
	GraduationYear int
	Page           int
	PageSize       int
}

// PagedGraduates is the paged registry search response.
type PagedGraduates struct {
	Items      []ExpectedGraduate `json:"items"`
	TotalCount int                `json:"total_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

// CalendarItem is one entry of the registry's academic calendar.
type CalendarItem struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Category string    `json:"category"`
}
