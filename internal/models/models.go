package models

import (
	"time"
)

const (
	RoleResearcher = "researcher"
	RoleUnitAdmin  = "unit-admin"
	RoleSuperAdmin = "super-admin"
)

const (
	StatusInProgress = "In Progress"
	StatusAvailable  = "Available"
	StatusExpired    = "Expired"
	StatusArchived   = "Archived"
	StatusDeleted    = "Deleted"
)

// StatusTransitions lists the statuses reachable from each status.
// Available can be retracted to In Progress. Archived and Deleted are
// terminal.
var StatusTransitions = map[string][]string{
	StatusInProgress: {StatusAvailable, StatusDeleted, StatusArchived},
	StatusAvailable:  {StatusInProgress, StatusExpired, StatusArchived},
	StatusExpired:    {StatusArchived},
	StatusArchived:   nil,
	StatusDeleted:    nil,
}

func ValidStatus(s string) bool {
	_, ok := StatusTransitions[s]
	return ok
}

type Unit struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name        string    `gorm:"uniqueIndex;not null"          json:"name"`
	InternalRef string    `gorm:"uniqueIndex;size:10;not null"  json:"internal_ref"`
	Counter     int       `gorm:"not null;default:0"            json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	Username         string     `gorm:"primaryKey;size:50"          json:"username"`
	Name             string     `gorm:"size:255"                    json:"name"`
	Email            string     `gorm:"uniqueIndex;size:320;not null" json:"email"`
	Role             string     `gorm:"not null"                    json:"role"`
	UnitID           *uint      `gorm:"index"                       json:"unit_id,omitempty"`
	Unit             *Unit      `gorm:"foreignKey:UnitID"           json:"-"`
	PasswordHash     string     `gorm:"not null"                    json:"-"`
	PublicKey        []byte     `gorm:"not null"                    json:"-"`
	PrivateKey       []byte     `gorm:"not null"                    json:"-"`
	PrivateKeyNonce  []byte     `gorm:"not null"                    json:"-"`
	KDFSalt          []byte     `gorm:"not null"                    json:"-"`
	HOTPSecret       string     `json:"-"`
	HOTPCounter      uint64     `gorm:"not null;default:0"          json:"-"`
	HOTPIssueTime    *time.Time `json:"-"`
	TOTPEnabled      bool       `gorm:"not null;default:false"      json:"totp_enabled"`
	TOTPSecret       string     `json:"-"`
	TOTPLastVerified *time.Time `json:"-"`
	MFAVerifiedAt    *time.Time `json:"-"`
	Active           bool       `gorm:"not null;default:true"       json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"-"`
}

type Project struct {
	ID              uint       `gorm:"primaryKey;autoIncrement"     json:"-"`
	PublicID        string     `gorm:"uniqueIndex;size:255;not null" json:"public_id"`
	Title           string     `gorm:"not null"                     json:"title"`
	Description     string     `gorm:"type:text"                    json:"description"`
	PI              string     `gorm:"size:255"                     json:"pi"`
	NonSensitive    bool       `gorm:"not null;default:false"       json:"non_sensitive"`
	Bucket          string     `gorm:"uniqueIndex;size:255;not null" json:"-"`
	CurrentStatus   string     `gorm:"not null;index"               json:"status"`
	UnitID          uint       `gorm:"index;not null"               json:"-"`
	Unit            *Unit      `gorm:"foreignKey:UnitID"            json:"-"`
	CreatedBy       string     `gorm:"size:50;not null"             json:"created_by"`
	Creator         *User      `gorm:"foreignKey:CreatedBy;references:Username" json:"-"`
	KeyOwner        string     `gorm:"size:50;not null"             json:"-"`
	PublicKey       []byte     `gorm:"not null"                     json:"-"`
	PrivateKey      []byte     `gorm:"not null"                     json:"-"`
	PrivateKeySalt  []byte     `gorm:"not null"                     json:"-"`
	PrivateKeyNonce []byte     `gorm:"not null"                     json:"-"`
	SizeOriginal    int64      `gorm:"not null;default:0"           json:"size"`
	SizeStored      int64      `gorm:"not null;default:0"           json:"size_stored"`
	DateCreated     time.Time  `gorm:"not null"                     json:"date_created"`
	DateUpdated     *time.Time `json:"date_updated,omitempty"`
}

// ProjectStatus rows are append-only. Project.CurrentStatus mirrors the
// latest row.
type ProjectStatus struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ProjectID uint      `gorm:"index;not null"           json:"-"`
	Project   *Project  `gorm:"foreignKey:ProjectID"     json:"-"`
	Status    string    `gorm:"not null"                 json:"status"`
	ChangedAt time.Time `gorm:"not null"                 json:"date"`
}

// ProjectUser grants a researcher access to a project.
type ProjectUser struct {
	ProjectID uint     `gorm:"primaryKey"          json:"-"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Username  string   `gorm:"primaryKey;size:50"  json:"username"`
	Owner     bool     `gorm:"not null;default:false" json:"owner"`
}

// ProjectUserKey is the project private key encrypted to one admin's
// public key.
type ProjectUserKey struct {
	ProjectID uint     `gorm:"primaryKey"          json:"-"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Username  string   `gorm:"primaryKey;size:50"  json:"-"`
	Key       []byte   `gorm:"not null"            json:"-"`
}

type File struct {
	ID             uint       `gorm:"primaryKey;autoIncrement"                     json:"-"`
	ProjectID      uint       `gorm:"not null;uniqueIndex:idx_file_project_name"   json:"-"`
	Project        *Project   `gorm:"foreignKey:ProjectID"                         json:"-"`
	Name           string     `gorm:"not null;uniqueIndex:idx_file_project_name"   json:"name"`
	NameInBucket   string     `gorm:"uniqueIndex;not null"                         json:"name_in_bucket"`
	Subpath        string     `gorm:"not null;index"                               json:"subpath"`
	SizeOriginal   int64      `gorm:"not null"                                     json:"size_original"`
	SizeStored     int64      `gorm:"not null"                                     json:"size_stored"`
	Compressed     bool       `gorm:"not null"                                     json:"compressed"`
	PublicKey      string     `gorm:"size:64;not null"                             json:"public_key"`
	Salt           string     `gorm:"size:64;not null"                             json:"salt"`
	Checksum       string     `gorm:"size:64;not null"                             json:"checksum"`
	DateUploaded   time.Time  `gorm:"not null"                                     json:"date_uploaded"`
	LatestDownload *time.Time `json:"latest_download,omitempty"`
}

func All() []any {
	return []any{
		&Unit{},
		&User{},
		&Project{},
		&ProjectStatus{},
		&ProjectUser{},
		&ProjectUserKey{},
		&File{},
	}
}
