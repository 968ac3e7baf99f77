// Package records holds the road-control business entities and their
// single-table persistence. Everything multi-table goes through the composer;
// everything else here is deliberately plain CRUD.
package records

import "time"

// DossierType names the business category an infraction is attached to.
type DossierType string

const (
	DossierIndividual DossierType = "particulier"
	DossierCompany    DossierType = "societe"
	DossierVehicle    DossierType = "vehicule"
)

// ValidDossierType reports whether t is one of the known categories.
func ValidDossierType(t DossierType) bool {
	switch t {
	case DossierIndividual, DossierCompany, DossierVehicle:
		return true
	}
	return false
}

type Vehicle struct {
	ID        int64     `json:"id"`
	Plate     string    `json:"plate"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	Color     string    `json:"color"`
	OwnerType string    `json:"owner_type"`
	OwnerID   int64     `json:"owner_id"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"created_at"`
}

type Individual struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	NationalID string    `json:"national_id"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	Photos     []string  `json:"photos"`
	CreatedAt  time.Time `json:"created_at"`
}

type Company struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	RegistrationNo string    `json:"registration_no"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	Photos         []string  `json:"photos"`
	CreatedAt      time.Time `json:"created_at"`
}

type Infraction struct {
	ID          int64       `json:"id"`
	DossierType DossierType `json:"dossier_type"`
	DossierID   int64       `json:"dossier_id"`
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	FineAmount  int64       `json:"fine_amount"`
	Paid        bool        `json:"paid"`
	PaidAt      *time.Time  `json:"paid_at"`
	Photos      []string    `json:"photos"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Accident struct {
	ID          int64     `json:"id"`
	Location    string    `json:"location"`
	OccurredAt  time.Time `json:"occurred_at"`
	Description string    `json:"description"`
	Photos      []string  `json:"photos"`
	// ImplicantPhotos documents the involved parties, stored separately from
	// the scene photos.
	ImplicantPhotos []string  `json:"implicant_photos"`
	CreatedAt       time.Time `json:"created_at"`
}

type SearchBulletin struct {
	ID         int64       `json:"id"`
	TargetType DossierType `json:"target_type"`
	TargetID   int64       `json:"target_id"`
	Reason     string      `json:"reason"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"created_at"`
}

type TemporaryPermit struct {
	ID           int64     `json:"id"`
	IndividualID int64     `json:"individual_id"`
	Plate        string    `json:"plate"`
	Reason       string    `json:"reason"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	Photos       []string  `json:"photos"`
	CreatedAt    time.Time `json:"created_at"`
}
