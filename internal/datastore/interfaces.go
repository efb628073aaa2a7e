// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// ErrNotFound is returned for missing records and for records owned by another user.
var ErrNotFound = errors.NewStd("record not found")

// ErrUsernameTaken is returned by CreateUser when the username is in use.
var ErrUsernameTaken = errors.NewStd("username already exists")

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error

	// Predictions
	CreatePrediction(ctx context.Context, p *Prediction) error
	QueryPredictions(ctx context.Context, userID uint, filter HistoryFilter) ([]Prediction, error)
	GetPredictionForUser(ctx context.Context, userID, id uint) (*Prediction, error)
	DashboardStats(ctx context.Context, userID uint) (*DashboardStats, error)

	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id uint) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateUserNames(ctx context.Context, id uint, firstName, lastName, email string) error
	TouchLastLogin(ctx context.Context, id uint) error

	// Profiles
	GetOrCreateProfile(ctx context.Context, userID uint) (*UserProfile, error)
	UpdateProfile(ctx context.Context, profile *UserProfile) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates the store selected in settings. Call Open before use.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.NewConfigurationError("no database output enabled")
	}
}

// Models returns every persisted entity in foreign key order: parents
// before the rows that reference them.
func Models() []any {
	return []any{&User{}, &UserProfile{}, &Prediction{}}
}

// performAutoMigration creates or updates tables for all entities.
func performAutoMigration(db *gorm.DB, dbType string) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database schema migrated", logger.String("db_type", dbType))
	return nil
}

// Ping checks that the database connection is alive.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// closeDB closes the underlying connection pool.
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}

// CreatePrediction inserts p in its own transaction. Timestamp is set to now
// and ImageFile defaults to DefaultImageFile.
func (ds *DataStore) CreatePrediction(ctx context.Context, p *Prediction) error {
	if p.UserID == 0 {
		return errors.NewValidationError("prediction has no owner")
	}
	p.ID = 0
	p.Timestamp = time.Now()
	if p.ImageFile == "" {
		p.ImageFile = DefaultImageFile
	}

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(p).Error
	})
	if err != nil {
		return dbError(err, "create_prediction")
	}
	return nil
}

// QueryPredictions returns userID's predictions newest first, narrowed by filter.
func (ds *DataStore) QueryPredictions(ctx context.Context, userID uint, filter HistoryFilter) ([]Prediction, error) {
	query := ds.DB.WithContext(ctx).Model(&Prediction{}).Where("user_id = ?", userID)

	if q := strings.TrimSpace(filter.Q); q != "" {
		query = query.Where("LOWER(patient_name) LIKE LOWER(?) ESCAPE '!'", "%"+escapeLike(q)+"%")
	}
	if filter.Category != "" {
		query = query.Where("result = ?", filter.Category)
	}
	switch filter.Risk {
	case RiskFilterNormal:
		query = query.Where("risk_level LIKE ?", "Low Risk%")
	case RiskFilterMild:
		query = query.Where("risk_level LIKE ?", "Moderate Risk%")
	case RiskFilterHigh:
		query = query.Where("risk_level LIKE ?", "%High Risk%")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var predictions []Prediction
	if err := query.Order("timestamp DESC").Order("id DESC").Find(&predictions).Error; err != nil {
		return nil, dbError(err, "query_predictions")
	}
	return predictions, nil
}

// GetPredictionForUser returns prediction id if it belongs to userID.
// Foreign records produce an authorization error that also matches ErrNotFound.
func (ds *DataStore) GetPredictionForUser(ctx context.Context, userID, id uint) (*Prediction, error) {
	var p Prediction
	if err := ds.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, dbError(err, "get_prediction")
	}
	if p.UserID != userID {
		return nil, errors.New(ErrNotFound).
			Component("datastore").
			Category(errors.CategoryAuthorization).
			Context("prediction_id", id).
			Build()
	}
	return &p, nil
}

// DashboardStats counts userID's predictions and returns the most recent ones.
func (ds *DataStore) DashboardStats(ctx context.Context, userID uint) (*DashboardStats, error) {
	db := ds.DB.WithContext(ctx)
	stats := &DashboardStats{}

	if err := db.Model(&Prediction{}).Where("user_id = ?", userID).Count(&stats.TotalScans).Error; err != nil {
		return nil, dbError(err, "count_predictions")
	}
	if err := db.Model(&Prediction{}).
		Where("user_id = ? AND risk_level LIKE ?", userID, "Low Risk%").
		Count(&stats.NormalResults).Error; err != nil {
		return nil, dbError(err, "count_normal")
	}
	stats.RiskDetected = stats.TotalScans - stats.NormalResults

	recent, err := ds.QueryPredictions(ctx, userID, HistoryFilter{Limit: RecentLimit})
	if err != nil {
		return nil, err
	}
	stats.Recent = recent
	return stats, nil
}

// CreateUser inserts u. A duplicate username returns ErrUsernameTaken.
func (ds *DataStore) CreateUser(ctx context.Context, u *User) error {
	if err := ds.DB.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.New(ErrUsernameTaken).
				Component("datastore").
				Category(errors.CategoryConflict).
				Build()
		}
		return dbError(err, "create_user")
	}
	return nil
}

// GetUserByUsername looks up a user by exact username.
func (ds *DataStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := ds.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, dbError(err, "get_user")
	}
	return &u, nil
}

// GetUserByID looks up a user by primary key.
func (ds *DataStore) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := ds.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, dbError(err, "get_user")
	}
	return &u, nil
}

// UsernameExists reports whether username is taken.
func (ds *DataStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := ds.DB.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, dbError(err, "username_exists")
	}
	return count > 0, nil
}

// UpdateUserNames sets the name and email fields of user id.
func (ds *DataStore) UpdateUserNames(ctx context.Context, id uint, firstName, lastName, email string) error {
	result := ds.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]any{
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	})
	if result.Error != nil {
		return dbError(result.Error, "update_user")
	}
	if result.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "update_user")
	}
	return nil
}

// TouchLastLogin records a successful login.
func (ds *DataStore) TouchLastLogin(ctx context.Context, id uint) error {
	if err := ds.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("last_login", time.Now()).Error; err != nil {
		return dbError(err, "touch_last_login")
	}
	return nil
}

// GetOrCreateProfile returns the profile of userID, creating it on first access.
func (ds *DataStore) GetOrCreateProfile(ctx context.Context, userID uint) (*UserProfile, error) {
	var profile UserProfile
	err := ds.DB.WithContext(ctx).
		Where(UserProfile{UserID: userID}).
		Attrs(UserProfile{EmailNotifications: true}).
		FirstOrCreate(&profile).Error
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a creation race; the row exists now.
			var existing UserProfile
			if err := ds.DB.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; err != nil {
				return nil, dbError(err, "get_profile")
			}
			return &existing, nil
		}
		return nil, dbError(err, "get_or_create_profile")
	}
	return &profile, nil
}

// UpdateProfile saves all profile fields, including false booleans.
func (ds *DataStore) UpdateProfile(ctx context.Context, profile *UserProfile) error {
	if profile.ID == 0 || profile.UserID == 0 {
		return errors.NewValidationError("profile must be loaded before update")
	}
	result := ds.DB.WithContext(ctx).Model(&UserProfile{}).Where("id = ? AND user_id = ?", profile.ID, profile.UserID).
		Updates(map[string]any{
			"phone":                  profile.Phone,
			"institution":            profile.Institution,
			"photo":                  profile.Photo,
			"email_notifications":    profile.EmailNotifications,
			"research_participation": profile.ResearchParticipation,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return dbError(result.Error, "update_profile")
	}
	if result.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "update_profile")
	}
	return nil
}

// dbError converts gorm errors into categorized errors.
func dbError(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(ErrNotFound).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("operation", op).
			Build()
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// isUniqueViolation detects unique constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// escapeLike escapes LIKE wildcards using '!' as the escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
