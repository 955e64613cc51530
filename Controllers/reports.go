package Controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Models"
	"ArteryPulse/SSE"
	"ArteryPulse/Sensor"
	"ArteryPulse/Storage"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gin-gonic/gin"
)

// Store holds patient report files. main sets it from the storage backend.
var Store Storage.Store

const storageTimeout = 30 * time.Second

type PatientPathInput struct {
	ID   uint   `json:"id" form:"id" binding:"required"`
	Path string `json:"path" form:"path"`
}

// patientPath resolves a path relative to the patient's folder.
func patientPath(id uint, rel string) (string, error) {
	return Storage.Join(Storage.PatientFolder(id), rel)
}

func storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, Storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	case errors.Is(err, Storage.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func FetchPatientTests(c *gin.Context) {
	var input PatientIDInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tests, err := Models.FetchPatientTests(Models.DB, input.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tests)
}

// FetchPatientTestFolders lists the date folders of a patient, or the test
// folders of one date when path is set.
func FetchPatientTestFolders(c *gin.Context) {
	listEntries(c, true)
}

// FetchTestFiles lists the files of one test folder.
func FetchTestFiles(c *gin.Context) {
	listEntries(c, false)
}

func listEntries(c *gin.Context, folders bool) {
	var input PatientPathInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dir, err := patientPath(input.ID, input.Path)
	if err != nil {
		storageError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()
	entries, err := Store.List(ctx, dir)
	if err != nil {
		storageError(c, err)
		return
	}

	// paths in the response are relative to the patient folder
	root := Storage.PatientFolder(input.ID) + "/"
	out := []Storage.Entry{}
	for _, e := range entries {
		if e.IsDir == folders {
			e.Path = strings.TrimPrefix(e.Path, root)
			out = append(out, e)
		}
	}
	c.JSON(http.StatusOK, out)
}

// UploadPatientRecord stores uploaded files under folder, or under a new
// test folder for now when folder is empty.
func UploadPatientRecord(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to parse form"})
		return
	}

	id, err := strconv.ParseUint(c.PostForm("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Patient ID is required"})
		return
	}
	if _, err := Models.GetPatient(Models.DB, uint(id)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	folder := Storage.TestFolder(uint(id), time.Now())
	if rel := c.PostForm("folder"); rel != "" {
		if folder, err = patientPath(uint(id), rel); err != nil {
			storageError(c, err)
			return
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to retrieve files from form data"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()
	var saved []string
	for _, file := range files {
		name, err := Storage.Join(folder, path.Base(strings.ReplaceAll(file.Filename, "\\", "/")))
		if err != nil {
			storageError(c, err)
			return
		}
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open the file"})
			return
		}
		err = Store.Save(ctx, name, src)
		src.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to save the file"})
			return
		}
		saved = append(saved, name)
	}

	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "Files uploaded successfully", "folder": folder, "files": saved})
}

// DownloadPatientRecord streams one stored file. Query: id, path.
func DownloadPatientRecord(c *gin.Context) {
	var input PatientPathInput
	if err := c.ShouldBindQuery(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := patientPath(input.ID, input.Path)
	if err != nil {
		storageError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()
	rc, err := Store.Open(ctx, name)
	if err != nil {
		storageError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(name)))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		c.Error(err)
	}
}

// DeletePatientRecord removes a file or a whole test or date folder.
func DeletePatientRecord(c *gin.Context) {
	var input PatientPathInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if strings.Trim(input.Path, "/ ") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: path is required"})
		return
	}
	name, err := patientPath(input.ID, input.Path)
	if err != nil {
		storageError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()
	if err := Store.Delete(ctx, name); err != nil {
		storageError(c, err)
		return
	}
	if err := Models.DeleteTestRecords(Models.DB, input.ID, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	SSE.Broadcaster.Broadcast(Constants.EventRefresh)
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

// ExportTestExcel converts a stored recording into a spreadsheet.
func ExportTestExcel(c *gin.Context) {
	var input PatientPathInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := patientPath(input.ID, input.Path)
	if err != nil {
		storageError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()
	rc, err := Store.Open(ctx, name)
	if err != nil {
		storageError(c, err)
		return
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rec, err := Sensor.DecodeRecording(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Not a recording: " + err.Error()})
		return
	}

	file := RecordingWorkbook(rec)
	filename := strings.TrimSuffix(path.Base(name), path.Ext(name)) + ".xlsx"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := file.Write(c.Writer); err != nil {
		c.Error(err)
	}
}

// RecordingWorkbook lays a recording out as a Samples sheet and an Info
// sheet.
func RecordingWorkbook(rec *Sensor.Recording) *excelize.File {
	file := excelize.NewFile()
	sheet := "Samples"
	index := file.NewSheet(sheet)
	file.DeleteSheet("Sheet1")

	headers := map[string]string{
		"A1": "Timestamp",
		"B1": "Hand sensor",
		"C1": "Leg sensor",
	}
	for k, v := range headers {
		file.SetCellValue(sheet, k, v)
	}
	for i, s := range rec.Samples() {
		appendRowSample(sheet, file, i, s)
	}

	info := "Info"
	file.NewSheet(info)
	rows := [][2]interface{}{
		{"Total data points", rec.Info.TotalDataPoints},
		{"Recording date", rec.Info.RecordingDate.Format(time.RFC3339)},
		{"Started at", rec.Info.StartedAt.Format(time.RFC3339)},
		{"Duration (ms)", rec.Info.DurationMs},
		{"Device type", rec.Info.DeviceType},
		{"Data format", rec.Info.DataFormat},
	}
	for i, row := range rows {
		file.SetCellValue(info, fmt.Sprintf("A%v", i+1), row[0])
		file.SetCellValue(info, fmt.Sprintf("B%v", i+1), row[1])
	}

	file.SetActiveSheet(index)
	return file
}

func appendRowSample(sheet string, file *excelize.File, index int, s Sensor.Sample) {
	rowCount := index + 2
	file.SetCellValue(sheet, fmt.Sprintf("A%v", rowCount), s.Timestamp)
	file.SetCellValue(sheet, fmt.Sprintf("B%v", rowCount), s.Value1)
	file.SetCellValue(sheet, fmt.Sprintf("C%v", rowCount), s.Value2)
}
