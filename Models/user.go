package Models

import (
	"errors"
	"html"
	"strings"

	"ArteryPulse/Utils/Token"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("User not found")

type User struct {
	gorm.Model
	Username string        `gorm:"size:255;not null;unique" json:"username"`
	Password string        `gorm:"size:255;not null;" json:"password"`
	FullName string        `json:"full_name"`
	Tokens   []DeviceToken `gorm:"foreignKey:UserID" json:"-"`
}

// DeviceToken is an FCM registration token for a signed in device.
type DeviceToken struct {
	gorm.Model
	UserID uint   `json:"user_id" gorm:"index"`
	Value  string `json:"value" gorm:"unique"`
}

func GetUserByID(uid uint) (User, error) {
	var user User

	if err := DB.First(&user, uid).Error; err != nil {
		return user, ErrUserNotFound
	}

	user.PrepareGive()

	return user, nil
}

func GetFCMsByID(uid uint) ([]string, error) {
	var fcms []string
	if err := DB.Model(&DeviceToken{}).Where("user_id = ?", uid).Pluck("value", &fcms).Error; err != nil {
		return []string{}, err
	}
	return fcms, nil
}

// GetAllFCMs returns every registered token. Recording notifications go to
// all staff devices.
func GetAllFCMs() ([]string, error) {
	var fcms []string
	if err := DB.Model(&DeviceToken{}).Distinct().Pluck("value", &fcms).Error; err != nil {
		return []string{}, err
	}
	return fcms, nil
}

// SaveDeviceToken stores value for the user, moving it over if another user
// registered it before.
func SaveDeviceToken(uid uint, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("token is required")
	}
	token := DeviceToken{UserID: uid, Value: value}
	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "value"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
	}).Create(&token).Error
}

func (user *User) PrepareGive() {
	user.Password = ""
}

func VerifyPassword(password, hashedPassword string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func LoginCheck(username string, password string) (uint, string, error) {
	user := User{}

	err := DB.Model(User{}).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if err != nil {
		return 0, "", err
	}

	if err := VerifyPassword(password, user.Password); err != nil {
		return 0, "", err
	}

	token, err := Token.GenerateToken(user.ID)
	if err != nil {
		return 0, "", err
	}

	return user.ID, token, nil
}

func (user *User) SaveUser() (*User, error) {
	if err := user.HashPassword(); err != nil {
		return &User{}, err
	}

	if err := DB.Create(&user).Error; err != nil {
		return &User{}, err
	}

	return user, nil
}

func (user *User) HashPassword() error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)

	// remove spaces in username
	user.Username = html.EscapeString(strings.TrimSpace(user.Username))

	return nil
}
