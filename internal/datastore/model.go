package datastore

import (
	"strings"
	"time"
)

// DefaultImageFile is stored when a prediction has no uploaded image.
const DefaultImageFile = "default.jpg"

// User is an account that owns predictions and a profile.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	FirstName    string `gorm:"size:150"`
	LastName     string `gorm:"size:150"`
	Email        string `gorm:"size:254"`
	CreatedAt    time.Time
	LastLogin    *time.Time

	Predictions []Prediction `gorm:"constraint:OnDelete:CASCADE"`
	Profile     *UserProfile `gorm:"constraint:OnDelete:CASCADE"`
}

// DisplayName returns "First Last", falling back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Prediction is one stored classification. Rows are never updated.
type Prediction struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"index;not null"`
	PatientName string    `gorm:"size:100;not null"`
	ScanType    string    `gorm:"size:50;not null"`
	Result      string    `gorm:"size:50;index"`
	Confidence  float64   // percentage, 0..100
	RiskLevel   string    `gorm:"size:50"`
	Timestamp   time.Time `gorm:"index;not null;<-:create"`
	ImageFile   string    `gorm:"size:255;default:default.jpg"`
}

// UserProfile holds optional contact details and preferences, one per user.
type UserProfile struct {
	ID                    uint   `gorm:"primaryKey"`
	UserID                uint   `gorm:"uniqueIndex;not null"`
	Phone                 string `gorm:"size:20"`
	Institution           string `gorm:"size:255"`
	Photo                 string `gorm:"size:255"`
	EmailNotifications    bool   `gorm:"not null;default:true"`
	ResearchParticipation bool   `gorm:"not null;default:false"`
	UpdatedAt             time.Time
}

// Risk filter presets accepted by HistoryFilter.Risk.
const (
	RiskFilterNormal = "normal" // risk level starts with "Low Risk"
	RiskFilterMild   = "mild"   // risk level starts with "Moderate Risk"
	RiskFilterHigh   = "high"   // risk level contains "High Risk", including "Very High Risk"
)

// HistoryFilter narrows QueryPredictions. Zero values disable a filter.
type HistoryFilter struct {
	Q        string // case-insensitive substring of patient name
	Category string // exact result label
	Risk     string // one of the RiskFilter presets, unknown values are ignored
	Limit    int
}

// DashboardStats summarizes a user's predictions.
type DashboardStats struct {
	TotalScans    int64
	NormalResults int64
	RiskDetected  int64
	Recent        []Prediction
}

// RecentLimit is the number of predictions shown on the dashboard.
const RecentLimit = 5

// IsHighRisk reports whether the risk tier is High or Very High.
// It matches the same rows as RiskFilterHigh.
func (p *Prediction) IsHighRisk() bool {
	return strings.Contains(p.RiskLevel, "High Risk")
}
