package Models

import (
	"time"

	"gorm.io/gorm"
)

// TestRecord indexes one stored recording so a patient's tests can be
// listed without walking storage.
type TestRecord struct {
	gorm.Model
	PatientID     uint   `json:"patient_id" gorm:"index;not null"`
	Date          string `json:"date"`
	TestTimestamp int64  `json:"test_timestamp" gorm:"index"`
	Folder        string `json:"folder"`
	FileName      string `json:"file_name"`
	DataPoints    int    `json:"data_points"`
	DurationMs    int64  `json:"duration_ms"`
	SensorCount   int    `json:"sensor_count"`
}

func (r *TestRecord) Path() string {
	return r.Folder + "/" + r.FileName
}

func (r *TestRecord) TakenAt() time.Time {
	return time.UnixMilli(r.TestTimestamp)
}

func FetchPatientTests(db *gorm.DB, patientID uint) ([]TestRecord, error) {
	var tests []TestRecord
	if err := db.Where("patient_id = ?", patientID).Order("test_timestamp desc").Find(&tests).Error; err != nil {
		return nil, err
	}
	return tests, nil
}

func (r *TestRecord) Save(db *gorm.DB) error {
	return db.Create(r).Error
}

// DeleteTestRecords removes the index rows for the file or folder at p.
func DeleteTestRecords(db *gorm.DB, patientID uint, p string) error {
	return db.Where(`patient_id = ? AND (folder = ? OR folder LIKE ? ESCAPE '\' OR folder || '/' || file_name = ?)`, patientID, p, likeEscaper.Replace(p)+"/%", p).
		Delete(&TestRecord{}).Error
}
