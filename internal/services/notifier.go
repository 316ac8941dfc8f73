package services

import (
	"context"
	"fmt"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/JunaidSumsaal/advanceparkingsystem/pkg/firebase"
	"github.com/google/uuid"
)

// ResolutionEvent describes one completed resolution, emitted by the
// orchestrator on every terminal branch.
type ResolutionEvent struct {
	ID       string
	UserID   *uint
	Count    int
	RadiusKm float64
	Source   string
}

// NewResolutionEvent tags the event with a correlation ID for log tracing.
func NewResolutionEvent(userID *uint, count int, radiusKm float64, source string) ResolutionEvent {
	return ResolutionEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		Count:    count,
		RadiusKm: radiusKm,
		Source:   source,
	}
}

// NotifyService delivers resolution notifications off the request path: a
// buffered channel feeds a single background worker, so a slow channel
// never inflates resolution latency. Delivery failures are logged and
// discarded.
type NotifyService struct {
	db     *database.DB
	fcm    *firebase.FCMService
	events chan ResolutionEvent
}

func NewNotifyService(db *database.DB, fcm *firebase.FCMService) *NotifyService {
	return &NotifyService{
		db:     db,
		fcm:    fcm,
		events: make(chan ResolutionEvent, 256),
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (n *NotifyService) Start(ctx context.Context) {
	log := logger.GetLogger("notifier")
	log.Info("Notification worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Notification worker stopped")
			return
		case ev := <-n.events:
			n.deliver(ctx, ev)
		}
	}
}

// Notify enqueues the event without blocking. When the queue is full the
// event is dropped - notifications are best effort.
func (n *NotifyService) Notify(ev ResolutionEvent) {
	select {
	case n.events <- ev:
	default:
		logger.GetLogger("notifier").Warnf("Event queue full, dropping event %s (source=%s)", ev.ID, ev.Source)
	}
}

func (n *NotifyService) deliver(ctx context.Context, ev ResolutionEvent) {
	log := logger.GetLogger("notifier")

	if ev.UserID == nil {
		log.Infof("[%s] Anonymous resolution: %d spots within %.1fkm (source=%s)",
			ev.ID, ev.Count, ev.RadiusKm, ev.Source)
		return
	}

	title := "Parking search complete"
	body := fmt.Sprintf("Found %d parking spots within %.1f km.", ev.Count, ev.RadiusKm)
	if ev.Count == 0 {
		body = fmt.Sprintf("No parking spots found within %.1f km. Try a wider radius.", ev.RadiusKm)
	}

	notification := models.Notification{
		UserID: *ev.UserID,
		Title:  title,
		Body:   body,
		Type:   models.NotificationTypeSearchResult,
		Status: models.NotificationStatusPending,
	}
	if err := n.db.WithContext(ctx).Create(&notification).Error; err != nil {
		log.Warnf("[%s] Failed to persist notification for user %d: %v", ev.ID, *ev.UserID, err)
		return
	}

	delivered := n.sendPush(ctx, ev, title, body)

	status := models.NotificationStatusSent
	if !delivered {
		status = models.NotificationStatusFailed
	}
	n.db.WithContext(ctx).Model(&notification).
		Updates(map[string]interface{}{"status": status, "delivered": delivered})
}

// sendPush pushes to the user's active devices and deactivates dead tokens.
func (n *NotifyService) sendPush(ctx context.Context, ev ResolutionEvent, title, body string) bool {
	log := logger.GetLogger("notifier")

	if n.fcm == nil || !n.fcm.IsInitialized() {
		return false
	}

	var devices []models.FCMDevice
	if err := n.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", *ev.UserID, true).
		Find(&devices).Error; err != nil {
		log.Warnf("[%s] Failed to load FCM devices for user %d: %v", ev.ID, *ev.UserID, err)
		return false
	}
	if len(devices) == 0 {
		return false
	}

	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}

	data := map[string]string{
		"type":   models.NotificationTypeSearchResult,
		"source": ev.Source,
		"count":  fmt.Sprintf("%d", ev.Count),
	}

	result := n.fcm.SendPushMultiple(ctx, tokens, title, body, data)
	log.Infof("[%s] Push result for user %d - success: %d, failure: %d",
		ev.ID, *ev.UserID, result.SuccessCount, result.FailureCount)

	if len(result.FailedTokens) > 0 {
		n.db.WithContext(ctx).Model(&models.FCMDevice{}).
			Where("token IN ?", result.FailedTokens).
			Update("is_active", false)
	}

	return result.SuccessCount > 0
}
