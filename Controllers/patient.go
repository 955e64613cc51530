package Controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Models"
	"ArteryPulse/SSE"
	"ArteryPulse/Storage"
	"ArteryPulse/Utils/Logger"

	"github.com/gin-gonic/gin"
)

type PatientIDInput struct {
	ID uint `json:"id" binding:"required"`
}

// PatientView adds the derived figures shown on the patient page.
type PatientView struct {
	Models.Patient
	Age int     `json:"age"`
	BMI float64 `json:"bmi"`
}

func viewOf(p Models.Patient) PatientView {
	return PatientView{Patient: p, Age: p.Age(time.Now()), BMI: p.BMI()}
}

func viewsOf(patients []Models.Patient) []PatientView {
	views := make([]PatientView, 0, len(patients))
	for _, p := range patients {
		views = append(views, viewOf(p))
	}
	return views
}

func FetchPatients(c *gin.Context) {
	patients, err := Models.FetchPatients(Models.DB)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewsOf(patients))
}

func SearchPatients(c *gin.Context) {
	var input struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patients, err := Models.SearchPatients(Models.DB, input.Query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewsOf(patients))
}

func FetchPatient(c *gin.Context) {
	var input PatientIDInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patient, err := Models.GetPatient(Models.DB, input.ID)
	if errors.Is(err, Models.ErrPatientNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(patient))
}

func invalidPatient(c *gin.Context, err error) {
	var fields Models.ValidationErrors
	if errors.As(err, &fields) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
}

func CreatePatient(c *gin.Context) {
	var input Models.Patient
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	input.ID = 0
	input.Tests = nil
	input.Normalize()
	if err := input.Validate(time.Now()); err != nil {
		invalidPatient(c, err)
		return
	}

	if err := Models.DB.Create(&input).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "Patient created successfully", "id": input.ID})
}

func UpdatePatient(c *gin.Context) {
	var input Models.Patient
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if input.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: id is required"})
		return
	}

	var patient Models.Patient
	if err := Models.DB.First(&patient, input.ID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": Models.ErrPatientNotFound.Error()})
		return
	}

	input.Normalize()
	if err := input.Validate(time.Now()); err != nil {
		invalidPatient(c, err)
		return
	}
	input.CreatedAt = patient.CreatedAt
	input.Tests = nil

	if err := Models.DB.Save(&input).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "Patient updated successfully"})
}

// DeletePatient removes the patient, their test index and their stored
// files.
func DeletePatient(c *gin.Context) {
	var input PatientIDInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Models.DeletePatient(Models.DB, input.ID); err != nil {
		if errors.Is(err, Models.ErrPatientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		if err := Store.Delete(ctx, Storage.PatientFolder(input.ID)); err != nil && !errors.Is(err, Storage.ErrNotFound) {
			Logger.Log.Warnw("patient files not removed", "patient", input.ID, "error", err)
		}
	}

	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "Patient deleted successfully"})
}
