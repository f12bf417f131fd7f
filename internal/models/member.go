package models

import (
	"strings"
	"time"

	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// MemberStatus is the lifecycle state of an alumni member record.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "PENDING"
	MemberStatusActive   MemberStatus = "ACTIVE"
	MemberStatusRejected MemberStatus = "REJECTED"
	MemberStatusBanned   MemberStatus = "BANNED"
)

// memberTransitions is the closed transition table. Rejected members re-apply
// through onboarding, not through a built-in transition.
var memberTransitions = map[MemberStatus][]MemberStatus{
	MemberStatusPending: {MemberStatusActive, MemberStatusRejected, MemberStatusBanned},
	MemberStatusActive:  {MemberStatusRejected, MemberStatusBanned},
}

// CanTransition reports whether a member lifecycle transition is allowed.
func CanTransition(from, to MemberStatus) bool {
	for _, allowed := range memberTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Member is the aggregate root for one alumnus: identity link, lifecycle,
// wallet and owned contact/education/experience collections. All amounts are
// in minor currency units.
type Member struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user_id"`
	RegistryKey   string       `db:"registry_key" json:"registry_key"`
	FullName      string       `db:"full_name" json:"full_name"`
	Mobile        string       `db:"mobile" json:"mobile"`
	NationalID    string       `db:"national_id" json:"national_id"`
	JobTitle      string       `db:"job_title" json:"job_title"`
	Bio           string       `db:"bio" json:"bio"`
	WalletBalance int64        `db:"wallet_balance" json:"wallet_balance"`
	Status        MemberStatus `db:"status" json:"status"`
	StatusReason  string       `db:"status_reason" json:"status_reason,omitempty"`
	Notable       bool         `db:"notable" json:"notable"`
	Branch        string       `db:"branch" json:"branch"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`

	Emails      []MemberEmail      `json:"emails,omitempty"`
	Mobiles     []MemberMobile     `json:"mobiles,omitempty"`
	Phones      []MemberPhone      `json:"phones,omitempty"`
	Educations  []MemberEducation  `json:"educations,omitempty"`
	Experiences []MemberExperience `json:"experiences,omitempty"`
}

// MemberEmail is an owned contact email. At most one primary per member.
type MemberEmail struct {
	ID        string    `db:"id" json:"id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	Address   string    `db:"address" json:"address"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MemberMobile is an owned mobile number. At most one primary per member.
type MemberMobile struct {
	ID        string    `db:"id" json:"id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	Number    string    `db:"number" json:"number"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MemberPhone is an owned landline number. At most one primary per member.
type MemberPhone struct {
	ID        string    `db:"id" json:"id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	Number    string    `db:"number" json:"number"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MemberEducation is an owned education entry, unique by institution+degree+year.
type MemberEducation struct {
	ID             string    `db:"id" json:"id"`
	MemberID       string    `db:"member_id" json:"member_id"`
	Institution    string    `db:"institution" json:"institution"`
	Degree         string    `db:"degree" json:"degree"`
	GraduationYear int       `db:"graduation_year" json:"graduation_year"`
	Semester       int       `db:"semester" json:"semester"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MemberExperience is an owned work-history entry, unique by company+title+start date.
type MemberExperience struct {
	ID        string     `db:"id" json:"id"`
	MemberID  string     `db:"member_id" json:"member_id"`
	Company   string     `db:"company" json:"company"`
	Title     string     `db:"title" json:"title"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// MemberFilter encapsulates allowed search parameters for listing members.
type MemberFilter struct {
	Search    string
	Status    MemberStatus
	Branch    string
	Notable   *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ValidateMobile enforces the format rule: a mobile number must start with a
// digit or '+'.
func ValidateMobile(number string) error {
	if number == "" {
		return nil
	}
	first := number[0]
	if first == '+' || (first >= '0' && first <= '9') {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrInvalidMobileFormat, map[string]interface{}{
		"mobile": number,
	})
}

// DeductWallet lowers the wallet balance, failing on non-positive amounts and
// on insufficient funds. The balance never goes negative.
func (m *Member) DeductWallet(amount int64) error {
	if amount <= 0 {
		return appErrors.WithDetails(appErrors.ErrNegativeDeduction, map[string]interface{}{
			"requested": amount,
		})
	}
	if m.WalletBalance < amount {
		return appErrors.WithDetails(appErrors.ErrInsufficientBalance, map[string]interface{}{
			"requested": amount,
			"balance":   m.WalletBalance,
		})
	}
	m.WalletBalance -= amount
	return nil
}

// AddCredit raises the wallet balance.
func (m *Member) AddCredit(amount int64) error {
	if amount <= 0 {
		return appErrors.WithDetails(appErrors.ErrNegativeDeduction, map[string]interface{}{
			"requested": amount,
		})
	}
	m.WalletBalance += amount
	return nil
}

// SetPrimaryEmail marks the email with the given address primary and unmarks
// every other one.
func (m *Member) SetPrimaryEmail(address string) error {
	found := false
	for i := range m.Emails {
		if strings.EqualFold(m.Emails[i].Address, address) {
			m.Emails[i].IsPrimary = true
			found = true
		} else {
			m.Emails[i].IsPrimary = false
		}
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "email not found on member")
	}
	return nil
}

// AddEducation appends an education entry, rejecting duplicates by natural key.
func (m *Member) AddEducation(entry MemberEducation) error {
	for _, existing := range m.Educations {
		if strings.EqualFold(existing.Institution, entry.Institution) &&
			strings.EqualFold(existing.Degree, entry.Degree) &&
			existing.GraduationYear == entry.GraduationYear {
			return appErrors.ErrDuplicateEducation
		}
	}
	m.Educations = append(m.Educations, entry)
	return nil
}

// AddExperience appends a work-history entry, rejecting duplicates by natural key.
func (m *Member) AddExperience(entry MemberExperience) error {
	for _, existing := range m.Experiences {
		if strings.EqualFold(existing.Company, entry.Company) &&
			strings.EqualFold(existing.Title, entry.Title) &&
			existing.StartedAt.Equal(entry.StartedAt) {
			return appErrors.ErrDuplicateExperience
		}
	}
	m.Experiences = append(m.Experiences, entry)
	return nil
}
