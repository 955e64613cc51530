package FirebaseMessaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ArteryPulse/Config"
	"ArteryPulse/Models"
	"ArteryPulse/Utils/Logger"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var ErrNotConfigured = errors.New("firebase messaging not configured")

// Client is the part of the FCM client used here.
type Client interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

var messagingClient Client

// NewApp initialises the Firebase app from a service account file, or from
// application default credentials when no path is set.
func NewApp(ctx context.Context, cfg Config.FirebaseConfig) (*firebase.App, error) {
	var conf *firebase.Config
	if cfg.Bucket != "" {
		conf = &firebase.Config{StorageBucket: cfg.Bucket}
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		Logger.Log.Infow("FIREBASE_SERVICE_ACCOUNT_PATH not set, using application default credentials")
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

func Setup(ctx context.Context, app *firebase.App) error {
	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("initialize firebase messaging client: %w", err)
	}
	messagingClient = client
	Logger.Log.Infow("firebase messaging client initialized")
	return nil
}

// SetClient replaces the messaging client. Tests pass a fake.
func SetClient(client Client) {
	messagingClient = client
}

func Enabled() bool {
	return messagingClient != nil
}

func buildMessage(req Models.NotificationRequest) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: req.Title,
			Body:  req.Body,
		},
		Data: req.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    "default",
				Priority: messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: req.Title,
						Body:  req.Body,
					},
					Sound: "default",
				},
			},
		},
	}
}

func SendMessage(req Models.NotificationRequest) error {
	if messagingClient == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	message := buildMessage(req)

	switch {
	case len(req.Tokens) == 1:
		message.Token = req.Tokens[0]
		if _, err := messagingClient.Send(ctx, message); err != nil {
			Logger.Log.Errorw("error sending message", "error", err)
			return err
		}
	case len(req.Tokens) > 1:
		resp, err := messagingClient.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       req.Tokens,
			Notification: message.Notification,
			Data:         message.Data,
			Android:      message.Android,
			APNS:         message.APNS,
		})
		if err != nil {
			Logger.Log.Errorw("error sending multicast message", "error", err)
			return err
		}
		if resp.FailureCount > 0 {
			Logger.Log.Warnw("some notifications failed", "failed", resp.FailureCount, "sent", resp.SuccessCount)
		}
	}
	return nil
}

// NotifyRecordingSaved tells every registered device that a new test was
// stored for the patient. It is a no-op when messaging is off.
func NotifyRecordingSaved(patient Models.Patient, record Models.TestRecord) error {
	if !Enabled() {
		return nil
	}
	tokens, err := Models.GetAllFCMs()
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	return SendMessage(Models.NotificationRequest{
		Tokens: tokens,
		Title:  "New test recorded",
		Body:   fmt.Sprintf("%s: %d data points saved", patient.Name, record.DataPoints),
		Data: map[string]string{
			"patient_id": fmt.Sprintf("%d", patient.ID),
			"path":       record.Path(),
		},
	})
}
