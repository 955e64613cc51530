package Routes

import (
	"ArteryPulse/Bridge"
	"ArteryPulse/Controllers"
	"ArteryPulse/Middleware"
	"ArteryPulse/SSE"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func ConfigRoutes(router *gin.Engine, hub *Bridge.Hub) {
	// The bridge socket and the event stream are registered before gzip so
	// their writers are never buffered. Browsers cannot set headers on either,
	// so both take the token from ?token= as well.
	if hub != nil {
		router.GET("/bridge", Middleware.JwtAuthMiddleware(), hub.Serve)
	}
	stream := router.Group("/api/protected")
	stream.Use(Middleware.JwtAuthMiddleware())
	stream.GET("/StreamSSE", SSE.StreamSSE)

	compressed := router.Group("")
	compressed.Use(gzip.Gzip(gzip.BestSpeed))

	// Public routes
	public := compressed.Group("/api")
	{
		public.POST("/login", Controllers.Login)
		public.POST("/register", Controllers.Register)
		public.POST("/SaveFcmToken", Controllers.SaveFcmToken)
	}

	// Authorized routes
	authorized := compressed.Group("/api/protected")
	authorized.Use(Middleware.JwtAuthMiddleware())
	{
		// User-related routes
		authorized.GET("/user", Controllers.CurrentUser)
		authorized.POST("/DeleteUser", Controllers.DeleteUser)

		// Patient-related routes
		authorized.GET("/FetchPatients", Controllers.FetchPatients)
		authorized.POST("/SearchPatients", Controllers.SearchPatients)
		authorized.POST("/FetchPatient", Controllers.FetchPatient)
		authorized.POST("/CreatePatient", Controllers.CreatePatient)
		authorized.POST("/UpdatePatient", Controllers.UpdatePatient)
		authorized.POST("/DeletePatient", Controllers.DeletePatient)

		// Report-related routes
		authorized.POST("/FetchPatientTests", Controllers.FetchPatientTests)
		authorized.POST("/FetchPatientTestFolders", Controllers.FetchPatientTestFolders)
		authorized.POST("/FetchTestFiles", Controllers.FetchTestFiles)
		authorized.POST("/UploadPatientRecord", Controllers.UploadPatientRecord)
		authorized.GET("/DownloadPatientRecord", Controllers.DownloadPatientRecord)
		authorized.POST("/DeletePatientRecord", Controllers.DeletePatientRecord)
		authorized.POST("/ExportTestExcel", Controllers.ExportTestExcel)

		// Device-related routes
		device := authorized.Group("/device")
		device.GET("/ports", Controllers.ListPorts)
		device.POST("/connect", Controllers.ConnectDevice)
		device.POST("/disconnect", Controllers.DisconnectDevice)
		device.POST("/command", Controllers.SendDeviceCommand)
		device.POST("/request", Controllers.RequestDeviceData)
		device.GET("/status", Controllers.DeviceStatus)
		device.GET("/samples", Controllers.DeviceSamples)
		device.POST("/clear", Controllers.ClearDeviceData)
		device.POST("/zoom", Controllers.SetDeviceZoom)
		device.POST("/recording/start", Controllers.StartRecording)
		device.POST("/recording/stop", Controllers.StopRecording)
	}
}
