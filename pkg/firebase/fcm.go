package firebase

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"google.golang.org/api/option"
)

// FCMService handles Firebase Cloud Messaging operations. It is
// constructed once at bootstrap and injected where needed; a service that
// failed to initialize silently skips every push.
type FCMService struct {
	client *messaging.Client
	mu     sync.RWMutex
}

// New initializes FCM from FIREBASE_CREDENTIALS (K8s Secret JSON) or a
// credentials file path. Initialization failure is non-fatal: push is an
// optional delivery channel.
func New(credentialsPath string) *FCMService {
	s := &FCMService{}
	s.initialize(credentialsPath)
	return s
}

func (s *FCMService) initialize(credentialsPath string) {
	log := logger.GetLogger("firebase")
	ctx := context.Background()

	credJSON := os.Getenv("FIREBASE_CREDENTIALS")
	var app *firebase.App
	var err error

	if credJSON != "" {
		// Parse JSON to validate
		var credMap map[string]interface{}
		if err := json.Unmarshal([]byte(credJSON), &credMap); err != nil {
			log.Warnf("Invalid JSON in FIREBASE_CREDENTIALS: %v", err)
			return
		}

		opt := option.WithCredentialsJSON([]byte(credJSON))
		app, err = firebase.NewApp(ctx, nil, opt)
	} else {
		if credentialsPath == "" {
			credentialsPath = "secrets/firebase-service-account.json"
		}

		if _, statErr := os.Stat(credentialsPath); os.IsNotExist(statErr) {
			log.Warnf("Credentials file not found: %s", credentialsPath)
			return
		}

		opt := option.WithCredentialsFile(credentialsPath)
		app, err = firebase.NewApp(ctx, nil, opt)
	}

	if err != nil {
		log.Warnf("Failed to initialize app: %v", err)
		return
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Warnf("Failed to get messaging client: %v", err)
		return
	}

	s.client = client
	log.Info("Firebase messaging initialized")
}

// IsInitialized returns whether FCM is ready
func (s *FCMService) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// SendPushResult represents the result of a push operation
type SendPushResult struct {
	SuccessCount int
	FailureCount int
	FailedTokens []string
}

// SendPush sends a push notification to a single device
func (s *FCMService) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	log := logger.GetLogger("firebase")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		log.Debug("Not initialized, skipping push")
		return false, nil
	}

	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			log.Infof("Token unregistered: %s...", token[:min(20, len(token))])
			return false, nil
		}
		log.Warnf("Push error: %v", err)
		return false, err
	}

	log.Infof("Push sent successfully: %s", response)
	return true, nil
}

// SendPushMultiple sends push notifications to multiple devices
func (s *FCMService) SendPushMultiple(ctx context.Context, tokens []string, title, body string, data map[string]string) *SendPushResult {
	log := logger.GetLogger("firebase")

	result := &SendPushResult{
		FailedTokens: make([]string, 0),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		log.Debug("Not initialized, skipping push")
		result.FailureCount = len(tokens)
		result.FailedTokens = tokens
		return result
	}

	if len(tokens) == 0 {
		return result
	}

	message := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:   data,
		Tokens: tokens,
	}

	response, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		log.Warnf("Multicast error: %v", err)
		result.FailureCount = len(tokens)
		result.FailedTokens = tokens
		return result
	}

	result.SuccessCount = response.SuccessCount
	result.FailureCount = response.FailureCount

	for idx, resp := range response.Responses {
		if !resp.Success {
			result.FailedTokens = append(result.FailedTokens, tokens[idx])
		}
	}

	log.Infof("Multicast sent - success: %d, failure: %d", result.SuccessCount, result.FailureCount)
	return result
}
