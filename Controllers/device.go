package Controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/CronJobs"
	"ArteryPulse/Device"
	"ArteryPulse/FirebaseMessaging"
	"ArteryPulse/Models"
	"ArteryPulse/SSE"
	"ArteryPulse/Sensor"
	"ArteryPulse/Storage"
	"ArteryPulse/Utils/Logger"

	"github.com/gin-gonic/gin"
)

// DeviceManager is the single device connection. main sets it.
var DeviceManager *Device.Manager

const connectTimeout = 10 * time.Second

func deviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, Device.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, Device.ErrAlreadyConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, Device.ErrEmptyCommand), errors.Is(err, CronJobs.ErrUnknownMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func ListPorts(c *gin.Context) {
	ports, err := DeviceManager.ListPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ports == nil {
		ports = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func ConnectDevice(c *gin.Context) {
	var input Device.ConnectRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()
	status, err := DeviceManager.Connect(ctx, input)
	if err != nil {
		deviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Connected to %s", input.Port), "status": status})
}

func DisconnectDevice(c *gin.Context) {
	if err := DeviceManager.Disconnect(); err != nil {
		deviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Disconnected"})
}

func SendDeviceCommand(c *gin.Context) {
	var input struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := DeviceManager.SendCommand(input.Command); err != nil {
		deviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Command sent"})
}

// RequestDeviceData sends the start command once, the manual mode button.
func RequestDeviceData(c *gin.Context) {
	if err := DeviceManager.RequestData(); err != nil {
		deviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Data requested"})
}

func DeviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, DeviceManager.Status())
}

func DeviceSamples(c *gin.Context) {
	c.JSON(http.StatusOK, DeviceManager.Monitor().Snapshot())
}

func ClearDeviceData(c *gin.Context) {
	DeviceManager.Monitor().Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Data cleared"})
}

// SetDeviceZoom turns auto zoom on or off for a channel, or snaps it to the
// data held when reset is set.
func SetDeviceZoom(c *gin.Context) {
	var input struct {
		Channel  Sensor.Channel `json:"channel" binding:"required"`
		AutoZoom *bool          `json:"auto_zoom"`
		Reset    bool           `json:"reset"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !input.Channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel must be 1 or 2"})
		return
	}

	monitor := DeviceManager.Monitor()
	if input.AutoZoom != nil {
		if err := monitor.SetAutoZoom(input.Channel, *input.AutoZoom); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if input.Reset {
		if _, err := monitor.ResetZoom(input.Channel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	snap := monitor.Snapshot()
	r, auto := snap.Range1, snap.AutoZoom1
	if input.Channel == Sensor.Channel2 {
		r, auto = snap.Range2, snap.AutoZoom2
	}
	c.JSON(http.StatusOK, gin.H{"channel": input.Channel, "range": r, "auto_zoom": auto})
}

func StartRecording(c *gin.Context) {
	DeviceManager.Monitor().StartRecording()
	DeviceManager.PublishStatus()
	c.JSON(http.StatusOK, gin.H{"message": "Recording started"})
}

const defaultSensorCount = 2

// StopRecording ends the recording. With a patient_id the recording is
// stored as a new test for that patient; without one, or when storing fails,
// it is returned as a JSON download so the data is never lost.
func StopRecording(c *gin.Context) {
	var input struct {
		PatientID   uint `json:"patient_id"`
		SensorCount int  `json:"sensor_count" binding:"omitempty,min=1,max=3"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var patient Models.Patient
	if input.PatientID != 0 {
		var err error
		if patient, err = Models.GetPatient(Models.DB, input.PatientID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	}

	rec, err := DeviceManager.Monitor().StopRecording()
	DeviceManager.PublishStatus()
	if errors.Is(err, Sensor.ErrEmptyRecording) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data recorded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body, err := rec.JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if input.PatientID == 0 {
		downloadRecording(c, rec, body)
		return
	}

	if input.SensorCount == 0 {
		input.SensorCount = defaultSensorCount
	}
	record, err := saveRecording(c.Request.Context(), patient, rec, body, input.SensorCount)
	if err != nil {
		Logger.Log.Errorw("recording not saved, returning it as a download", "patient", patient.ID, "error", err)
		c.Header(RecordingSavedHeader, "false")
		downloadRecording(c, rec, body)
		return
	}

	if err := FirebaseMessaging.NotifyRecordingSaved(patient, record); err != nil {
		Logger.Log.Warnw("recording notification failed", "patient", patient.ID, "error", err)
	}
	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "Recording saved", "test": record})
}

// RecordingSavedHeader is set to "false" when a recording meant for a patient
// could not be stored and is returned as a download instead.
const RecordingSavedHeader = "X-Recording-Saved"

func downloadRecording(c *gin.Context, rec *Sensor.Recording, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName()))
	c.Data(http.StatusOK, "application/json", body)
}

// saveRecording stores the file and then its index row. A failed insert
// removes the file again so storage never holds a test the database does not
// know about.
func saveRecording(ctx context.Context, patient Models.Patient, rec *Sensor.Recording, body []byte, sensors int) (Models.TestRecord, error) {
	taken := rec.Info.StartedAt
	folder := Storage.TestFolder(patient.ID, taken)
	record := Models.TestRecord{
		PatientID:     patient.ID,
		Date:          taken.Format(Constants.DateFolderLayout),
		TestTimestamp: taken.UnixMilli(),
		Folder:        folder,
		FileName:      rec.FileName(),
		DataPoints:    rec.Info.TotalDataPoints,
		DurationMs:    rec.Info.DurationMs,
		SensorCount:   sensors,
	}

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	name := path.Join(folder, record.FileName)
	if err := Store.Save(ctx, name, bytes.NewReader(body)); err != nil {
		return record, err
	}
	if err := record.Save(Models.DB); err != nil {
		if derr := Store.Delete(ctx, name); derr != nil {
			Logger.Log.Warnw("orphaned recording file", "path", name, "error", derr)
		}
		return record, err
	}
	return record, nil
}
