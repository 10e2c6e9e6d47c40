package models

import "strings"

// Role enum
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Specialty groups doctors for the first booking step.
type Specialty struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:255" json:"description,omitempty"`
	Icon        string `gorm:"size:120" json:"icon,omitempty"`
	Active      bool   `gorm:"not null" json:"active"`
}

// Doctor is a bookable practitioner. Identity and activation are managed elsewhere.
type Doctor struct {
	BaseModel
	FirstName      string `gorm:"size:120;not null" json:"firstName"`
	LastName       string `gorm:"size:100;not null" json:"lastName"`
	SecondLastName string `gorm:"size:100" json:"secondLastName,omitempty"`
	License        string `gorm:"size:100;uniqueIndex;not null" json:"license"`
	Office         string `gorm:"size:255" json:"office,omitempty"`
	Biography      string `gorm:"size:500" json:"biography,omitempty"`
	SpecialtyID    string `gorm:"size:36;index;not null" json:"specialtyId"`
	Active         bool   `gorm:"not null" json:"active"`
}

// FullName joins the non-empty name parts.
func (d *Doctor) FullName() string {
	return joinNames(d.FirstName, d.LastName, d.SecondLastName)
}

// Patient is the booking party. Only the fields the scheduling flow reads are mapped.
type Patient struct {
	BaseModel
	FirstName      string `gorm:"size:120;not null" json:"firstName"`
	LastName       string `gorm:"size:100;not null" json:"lastName"`
	SecondLastName string `gorm:"size:100" json:"secondLastName,omitempty"`
	Email          string `gorm:"size:255" json:"email,omitempty"`
	Phone          string `gorm:"size:20" json:"phone,omitempty"`
	Active         bool   `gorm:"not null" json:"active"`
}

func (p *Patient) FullName() string {
	return joinNames(p.FirstName, p.LastName, p.SecondLastName)
}

func joinNames(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
