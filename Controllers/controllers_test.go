package Controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"ArteryPulse/Device"
	"ArteryPulse/Models"
	"ArteryPulse/Monitor"
	"ArteryPulse/Sensor"
	"ArteryPulse/Serial"
	"ArteryPulse/Storage"
	"ArteryPulse/Utils/Token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := Models.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	Models.DB = db

	store, err := Storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	Store = store

	DeviceManager = Device.NewManager(Device.Options{
		Opener:     func(string, int) (Serial.Port, error) { return nil, errors.New("no device") },
		Lister:     func() ([]string, error) { return []string{"/dev/ttyUSB0"}, nil },
		Monitor:    Monitor.DefaultConfig(),
		RetryDelay: time.Millisecond,
	})
	Token.Configure("test-secret", 1)

	r := gin.New()
	r.POST("/login", Login)
	r.POST("/register", Register)
	r.GET("/user", CurrentUser)
	r.GET("/FetchPatients", FetchPatients)
	r.POST("/SearchPatients", SearchPatients)
	r.POST("/FetchPatient", FetchPatient)
	r.POST("/CreatePatient", CreatePatient)
	r.POST("/UpdatePatient", UpdatePatient)
	r.POST("/DeletePatient", DeletePatient)
	r.POST("/FetchPatientTests", FetchPatientTests)
	r.POST("/FetchPatientTestFolders", FetchPatientTestFolders)
	r.POST("/FetchTestFiles", FetchTestFiles)
	r.POST("/UploadPatientRecord", UploadPatientRecord)
	r.GET("/DownloadPatientRecord", DownloadPatientRecord)
	r.POST("/DeletePatientRecord", DeletePatientRecord)
	r.POST("/ExportTestExcel", ExportTestExcel)
	r.GET("/device/ports", ListPorts)
	r.POST("/device/connect", ConnectDevice)
	r.POST("/device/disconnect", DisconnectDevice)
	r.POST("/device/command", SendDeviceCommand)
	r.GET("/device/status", DeviceStatus)
	r.GET("/device/samples", DeviceSamples)
	r.POST("/device/clear", ClearDeviceData)
	r.POST("/device/zoom", SetDeviceZoom)
	r.POST("/device/recording/start", StartRecording)
	r.POST("/device/recording/stop", StopRecording)
	return r
}

func do(r *gin.Engine, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var patientBody = map[string]string{
	"name":   "Gouri Katte",
	"gender": "female",
	"dob":    "1988-02-10",
	"email":  "gouri@example.com",
	"phone":  "9876543210",
	"state":  "Karnataka",
	"city":   "Belgaum",
	"height": "160",
	"weight": "64",
	"smoke":  "no",
	"drink":  "no",
}

func createPatient(t *testing.T, r *gin.Engine) uint {
	t.Helper()
	w := do(r, http.MethodPost, "/CreatePatient", patientBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		ID uint `json:"id"`
	}](t, w).ID
}

func TestRegisterLoginCurrentUser(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/register", gin.H{"username": "nurse", "password": "secret1", "full_name": "Ward Nurse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/register", gin.H{"username": "nurse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/login", LoginInput{Username: "nurse", Password: "wrong1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/login", LoginInput{Username: "nurse", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	jwt := decode[map[string]string](t, w)["jwt"]
	require.NotEmpty(t, jwt)

	w = do(r, http.MethodGet, "/user", nil, "Authorization", "Bearer "+jwt)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"full_name":"Ward Nurse"`)
}

func TestPatientCRUD(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/CreatePatient", gin.H{"name": "x", "email": "bad"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w).Fields
	assert.Equal(t, "invalid email address", fields["email"])
	assert.Equal(t, "is required", fields["city"])

	id := createPatient(t, r)
	require.NotZero(t, id)

	w = do(r, http.MethodPost, "/FetchPatient", PatientIDInput{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, w)
	assert.Equal(t, "Gouri Katte", view["name"])
	assert.Equal(t, 25.0, view["bmi"])

	update := map[string]any{"id": id}
	for k, v := range patientBody {
		update[k] = v
	}
	update["city"] = "Pune"
	w = do(r, http.MethodPost, "/UpdatePatient", update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/SearchPatients", gin.H{"query": "gou"})
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]map[string]any](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, "Pune", found[0]["city"])

	w = do(r, http.MethodPost, "/DeletePatient", PatientIDInput{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/FetchPatient", PatientIDInput{ID: id})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/FetchPatients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]map[string]any](t, w))
}

func TestRecordingSavedForPatient(t *testing.T) {
	r := setupRouter(t)
	id := createPatient(t, r)

	w := do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/device/recording/start", nil).Code)
	DeviceManager.Monitor().Feed("$10&20#100\n$11&21#200\n")

	w = do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id + 100})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[struct {
		Test Models.TestRecord `json:"test"`
	}](t, w).Test
	assert.Equal(t, 2, saved.DataPoints)
	assert.Equal(t, 2, saved.SensorCount)

	w = do(r, http.MethodPost, "/FetchPatientTests", PatientIDInput{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Models.TestRecord](t, w), 1)

	w = do(r, http.MethodPost, "/FetchPatientTestFolders", PatientPathInput{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	dates := decode[[]Storage.Entry](t, w)
	require.Len(t, dates, 1)
	assert.Equal(t, saved.Date, dates[0].Path)

	w = do(r, http.MethodPost, "/FetchPatientTestFolders", PatientPathInput{ID: id, Path: dates[0].Path})
	tests := decode[[]Storage.Entry](t, w)
	require.Len(t, tests, 1)

	w = do(r, http.MethodPost, "/FetchTestFiles", PatientPathInput{ID: id, Path: tests[0].Path})
	files := decode[[]Storage.Entry](t, w)
	require.Len(t, files, 1)
	assert.Equal(t, saved.FileName, files[0].Name)

	q := url.Values{"id": {fmt.Sprint(id)}, "path": {files[0].Path}}
	w = do(r, http.MethodGet, "/DownloadPatientRecord?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec, err := Sensor.DecodeRecording(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, rec.Data.Value1)

	w = do(r, http.MethodPost, "/ExportTestExcel", PatientPathInput{ID: id, Path: files[0].Path})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(r, http.MethodPost, "/DeletePatientRecord", PatientPathInput{ID: id, Path: "../2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/DeletePatientRecord", PatientPathInput{ID: id, Path: dates[0].Path})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/FetchPatientTests", PatientPathInput{ID: id})
	assert.Empty(t, decode[[]Models.TestRecord](t, w))
}

type flakyStore struct {
	Storage.Store
	saveErr error
	saved   []string
	deleted []string
}

func (s *flakyStore) Save(ctx context.Context, name string, r io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, name)
	return s.Store.Save(ctx, name, r)
}

func (s *flakyStore) Delete(ctx context.Context, name string) error {
	s.deleted = append(s.deleted, name)
	return s.Store.Delete(ctx, name)
}

func recordTwoSamples(t *testing.T, r *gin.Engine) {
	t.Helper()
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/device/recording/start", nil).Code)
	DeviceManager.Monitor().Feed("$10&20#100\n$11&21#200\n")
}

func TestRecordingReturnedWhenStorageFails(t *testing.T) {
	r := setupRouter(t)
	id := createPatient(t, r)
	Store = &flakyStore{Store: Store, saveErr: errors.New("bucket unavailable")}

	recordTwoSamples(t, r)
	w := do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Header().Get(RecordingSavedHeader))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "arduino_recording_")

	rec, err := Sensor.DecodeRecording(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []int{20, 21}, rec.Data.Value2)

	tests, err := Models.FetchPatientTests(Models.DB, id)
	require.NoError(t, err)
	assert.Empty(t, tests)
}

func TestRecordingFileRemovedWhenIndexFails(t *testing.T) {
	r := setupRouter(t)
	id := createPatient(t, r)
	store := &flakyStore{Store: Store}
	Store = store
	require.NoError(t, Models.DB.Callback().Create().Before("gorm:create").Register("fail_test_records", func(db *gorm.DB) {
		if db.Statement.Schema != nil && db.Statement.Schema.Table == "test_records" {
			db.AddError(errors.New("disk full"))
		}
	}))

	recordTwoSamples(t, r)
	w := do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Header().Get(RecordingSavedHeader))

	require.Len(t, store.saved, 1)
	assert.Equal(t, store.saved, store.deleted)
	_, err := Store.Open(context.Background(), store.saved[0])
	assert.ErrorIs(t, err, Storage.ErrNotFound)
}

func TestRecordingSensorCount(t *testing.T) {
	r := setupRouter(t)
	id := createPatient(t, r)

	recordTwoSamples(t, r)
	w := do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id, "sensor_count": 4})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/device/recording/stop", gin.H{"patient_id": id, "sensor_count": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get(RecordingSavedHeader))
	saved := decode[struct {
		Test Models.TestRecord `json:"test"`
	}](t, w).Test
	assert.Equal(t, 1, saved.SensorCount)
}

type brokenReadStore struct {
	Storage.Store
}

func (brokenReadStore) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("connection reset")))), nil
}

func TestDownloadReportsTruncatedCopy(t *testing.T) {
	setupRouter(t)
	Store = brokenReadStore{Store: Store}

	var errs []string
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		errs = c.Errors.Errors()
	})
	r.GET("/DownloadPatientRecord", DownloadPatientRecord)

	w := do(r, http.MethodGet, "/DownloadPatientRecord?id=1&path=a.json", nil)
	assert.Equal(t, "partial", w.Body.String())
	assert.Equal(t, []string{"connection reset"}, errs)
}

func TestRecordingDownloadWithoutPatient(t *testing.T) {
	r := setupRouter(t)

	do(r, http.MethodPost, "/device/recording/start", nil)
	DeviceManager.Monitor().Feed("$1&2#3\n")

	w := do(r, http.MethodPost, "/device/recording/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "arduino_recording_")
	rec, err := Sensor.DecodeRecording(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Info.TotalDataPoints)
}

func TestUploadPatientRecord(t *testing.T) {
	r := setupRouter(t)
	id := createPatient(t, r)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("id", fmt.Sprint(id)))
	require.NoError(t, mw.WriteField("folder", "2024-03-01/1709289000000"))
	part, err := mw.CreateFormFile("files", "scan.pdf")
	require.NoError(t, err)
	part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/UploadPatientRecord", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/FetchTestFiles", PatientPathInput{ID: id, Path: "2024-03-01/1709289000000"})
	files := decode[[]Storage.Entry](t, w)
	require.Len(t, files, 1)
	assert.Equal(t, "scan.pdf", files[0].Name)
	assert.Equal(t, int64(8), files[0].Size)
}

func TestDeviceEndpoints(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodGet, "/device/ports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ports":["/dev/ttyUSB0"]}`, w.Body.String())

	w = do(r, http.MethodPost, "/device/connect", gin.H{"port": "/dev/ttyUSB0"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = do(r, http.MethodPost, "/device/connect", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/device/disconnect", nil).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/device/command", gin.H{"command": "L"}).Code)

	DeviceManager.Monitor().Feed("$500&600#1\n")
	w = do(r, http.MethodGet, "/device/samples", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[Monitor.Snapshot](t, w).Samples, 1)

	w = do(r, http.MethodPost, "/device/zoom", gin.H{"channel": 2, "auto_zoom": false, "reset": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"channel":2,"range":{"min":595,"max":605},"auto_zoom":false}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/device/zoom", gin.H{"channel": 3}).Code)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/device/clear", nil).Code)
	w = do(r, http.MethodGet, "/device/status", nil)
	status := decode[Device.Status](t, w)
	assert.False(t, status.Connected)
	assert.Empty(t, DeviceManager.Monitor().Snapshot().Samples)
}
