package Models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ArteryPulse/Constants"

	"gorm.io/gorm"
)

var (
	emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

var ErrPatientNotFound = errors.New("patient not found")

type Patient struct {
	gorm.Model
	Name        string       `json:"name" gorm:"index"`
	Gender      string       `json:"gender"`
	DOB         string       `json:"dob"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	State       string       `json:"state"`
	City        string       `json:"city"`
	Height      string       `json:"height"`
	Weight      string       `json:"weight"`
	Smoke       string       `json:"smoke"`
	Drink       string       `json:"drink"`
	Diabetes    string       `json:"diabetes"`
	Diagnosis   string       `json:"diagnosis"`
	Symptoms    string       `json:"symptoms"`
	Medications string       `json:"medications"`
	Tests       []TestRecord `json:"tests,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// ValidationErrors maps a field to its problem.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, v[field]))
	}
	return strings.Join(parts, "; ")
}

// Normalize trims every field.
func (p *Patient) Normalize() {
	for _, f := range []*string{
		&p.Name, &p.Gender, &p.DOB, &p.Email, &p.Phone, &p.State, &p.City,
		&p.Height, &p.Weight, &p.Smoke, &p.Drink, &p.Diabetes, &p.Diagnosis,
		&p.Symptoms, &p.Medications,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate checks the registration form rules. It returns nil or
// ValidationErrors.
func (p *Patient) Validate(now time.Time) error {
	errs := ValidationErrors{}
	required := map[string]string{
		"name":   p.Name,
		"gender": p.Gender,
		"dob":    p.DOB,
		"email":  p.Email,
		"phone":  p.Phone,
		"state":  p.State,
		"city":   p.City,
		"height": p.Height,
		"weight": p.Weight,
		"smoke":  p.Smoke,
		"drink":  p.Drink,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs[field] = "is required"
		}
	}

	if _, missing := errs["email"]; !missing && !emailPattern.MatchString(strings.TrimSpace(p.Email)) {
		errs["email"] = "invalid email address"
	}
	if _, missing := errs["phone"]; !missing && len(nonDigits.ReplaceAllString(p.Phone, "")) != 10 {
		errs["phone"] = "must have 10 digits"
	}
	if _, missing := errs["dob"]; !missing {
		dob, err := time.ParseInLocation(Constants.DateFolderLayout, strings.TrimSpace(p.DOB), now.Location())
		switch {
		case err != nil:
			errs["dob"] = "must be YYYY-MM-DD"
		case dob.After(now):
			errs["dob"] = "cannot be in the future"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Age in whole years at now, or 0 when dob is unparsable.
func (p *Patient) Age(now time.Time) int {
	dob, err := time.ParseInLocation(Constants.DateFolderLayout, p.DOB, now.Location())
	if err != nil || dob.After(now) {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// BMI from height in cm and weight in kg, rounded to one decimal. 0 when
// either is missing or unparsable.
func (p *Patient) BMI() float64 {
	height, err := strconv.ParseFloat(strings.TrimSpace(p.Height), 64)
	if err != nil || height <= 0 {
		return 0
	}
	weight, err := strconv.ParseFloat(strings.TrimSpace(p.Weight), 64)
	if err != nil || weight <= 0 {
		return 0
	}
	m := height / 100
	return math.Round(weight/(m*m)*10) / 10
}

func FetchPatients(db *gorm.DB) ([]Patient, error) {
	var patients []Patient
	if err := db.Order("name asc").Find(&patients).Error; err != nil {
		return nil, err
	}
	return patients, nil
}

// likeEscaper escapes LIKE wildcards for patterns used with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPatients returns patients whose name starts with prefix, ignoring
// case.
func SearchPatients(db *gorm.DB, prefix string) ([]Patient, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return FetchPatients(db)
	}
	escaped := likeEscaper.Replace(prefix)
	var patients []Patient
	err := db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, escaped+"%").Order("name asc").Find(&patients).Error
	if err != nil {
		return nil, err
	}
	return patients, nil
}

func GetPatient(db *gorm.DB, id uint) (Patient, error) {
	var patient Patient
	err := db.Preload("Tests", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("test_timestamp desc")
	}).First(&patient, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return patient, ErrPatientNotFound
	}
	return patient, err
}

func DeletePatient(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", id).Delete(&TestRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Patient{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPatientNotFound
		}
		return nil
	})
}
