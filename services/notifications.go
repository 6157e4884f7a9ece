package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"marketplace-server/models"
)

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// NotificationService persists in-app notifications and sends the matching
// push messages. Delivery is best effort; failures are logged and swallowed.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

type expoPushMessage struct {
	To    []string          `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

// NotifyInstanceCancelled tells the operator that a date of their experience
// was cancelled by an admin.
func (ns *NotificationService) NotifyInstanceCancelled(operatorID uint, tripTitle, dateKey, reason string, instanceID uint) {
	title := "Experience date cancelled"
	message := fmt.Sprintf("'%s' on %s was cancelled: %s", tripTitle, dateKey, reason)
	ns.notify(operatorID, "instance_cancelled", title, message, "experience_instance", instanceID)
}

// NotifyBookingConfirmed tells the explorer their booking was accepted.
func (ns *NotificationService) NotifyBookingConfirmed(explorerID uint, tripTitle, dateKey string, headCount int, bookingID uint) {
	title := "Booking confirmed"
	message := fmt.Sprintf("Your booking for '%s' on %s (%d guest(s)) is confirmed", tripTitle, dateKey, headCount)
	ns.notify(explorerID, "booking_confirmed", title, message, "booking", bookingID)
}

// NotifyBookingRequested tells the operator a new booking awaits approval.
func (ns *NotificationService) NotifyBookingRequested(operatorID uint, tripTitle, dateKey string, headCount int, bookingID uint) {
	title := "New booking request"
	message := fmt.Sprintf("%d guest(s) requested '%s' on %s", headCount, tripTitle, dateKey)
	ns.notify(operatorID, "booking_requested", title, message, "booking", bookingID)
}

func (ns *NotificationService) notify(userID uint, notifType, title, message, refType string, refID uint) {
	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		RefType: refType,
		RefID:   refID,
	}
	if err := ns.db.Create(&notification).Error; err != nil {
		log.Printf("notifications: failed to store notification for user %d: %v", userID, err)
	}

	tokens, err := ns.userPushTokens(userID)
	if err != nil {
		log.Printf("notifications: skipping push for user %d: %v", userID, err)
		return
	}
	ns.sendPush(tokens, title, message, map[string]string{
		"type":    notifType,
		"refType": refType,
		"refId":   fmt.Sprintf("%d", refID),
	})
}

func (ns *NotificationService) userPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := ns.db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}
	if user.AllowsNotifications == nil || !*user.AllowsNotifications {
		return nil, fmt.Errorf("user has notifications disabled")
	}
	tokens := user.PushTokenList()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("user has no push tokens")
	}
	return tokens, nil
}

func (ns *NotificationService) sendPush(tokens []string, title, body string, data map[string]string) {
	payload, err := json.Marshal(expoPushMessage{
		To:    tokens,
		Title: title,
		Body:  body,
		Data:  data,
		Sound: "default",
	})
	if err != nil {
		log.Printf("notifications: failed to marshal push payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(expoPushURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("notifications: push request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notifications: push rejected with status %d", resp.StatusCode)
	}
}
