package Constants

// Device line protocol.
const (
	StartCommand    = "$"
	StopCommand     = "D"
	DefaultBaudRate = 115200
	DeviceType      = "Arduino"
	DataFormat      = "value1: Hand sensor, value2: Leg sensor, timestamp: Arduino timestamp"
)

// Events shared by the bridge socket and the SSE stream.
const (
	EventArduinoData      = "arduino_data"
	EventConnectionStatus = "connection_status"
	EventPlotData         = "plot_data"
	EventConnect          = "connect_to_arduino"
	EventDisconnect       = "disconnect_from_arduino"
	EventListPorts        = "list_ports"
	EventSendCommand      = "send_command"
	EventAck              = "ack"
	EventError            = "error"
	EventRefresh          = "refresh"
)

// Request modes for the data requester.
const (
	RequestModeSmart      = "smart"
	RequestModeContinuous = "continuous"
	RequestModeManual     = "manual"
)

const DateFolderLayout = "2006-01-02"
