package Models

// NotificationRequest is one push to a set of device tokens.
type NotificationRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type ResponseMessage struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
