package database

import (
	"time"
)

// Webhook log statuses.
const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusError     = "error"
)

// Message log statuses.
const (
	MessageStatusProcessing = "processing"
	MessageStatusDelivered  = "delivered"
	MessageStatusFailed     = "failed"

	// MessageErrorUserBlocked marks replies that can never be delivered.
	MessageErrorUserBlocked = "USER_BLOCKED_BOT"
	MessageErrorSendFailed  = "SEND_FAILED"
)

// Background task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Push notification statuses.
const (
	PushStatusReceived  = "received"
	PushStatusProcessed = "processed"
	PushStatusFailed    = "failed"
)

// BotRegistration binds a Telegram bot token to an owner and a webhook.
// Rows are never deleted; IsActive flips to false instead.
type BotRegistration struct {
	ID           int64      `db:"id"            json:"id"`
	BotID        string     `db:"bot_id"        json:"bot_id"`
	TelegramID   int64      `db:"telegram_id"   json:"telegram_id"`
	BotToken     string     `db:"bot_token"     json:"-"`
	OwnerUserID  int64      `db:"owner_user_id" json:"owner_user_id"`
	WebhookURL   string     `db:"webhook_url"   json:"webhook_url"`
	WebhookSet   bool       `db:"webhook_set"   json:"webhook_set"`
	IsActive     bool       `db:"is_active"     json:"is_active"`
	ErrorCount   int        `db:"error_count"   json:"error_count"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
	LastActivity *time.Time `db:"last_activity" json:"last_activity,omitempty"`
}

// WebhookLog records one inbound webhook delivery.
type WebhookLog struct {
	ID             int64     `db:"id"              json:"id"`
	BotID          string    `db:"bot_id"          json:"bot_id"`
	RawPayload     string    `db:"raw_payload"     json:"raw_payload"`
	Status         string    `db:"status"          json:"status"`
	ResponseSent   *bool     `db:"response_sent"   json:"response_sent,omitempty"`
	ProcessingTime *float64  `db:"processing_time" json:"processing_time,omitempty"`
	ErrorMessage   *string   `db:"error_message"   json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// MessageLog records one inbound text message and the reply sent for it.
type MessageLog struct {
	ID               int64      `db:"id"                json:"id"`
	BotID            string     `db:"bot_id"            json:"bot_id"`
	ChatID           int64      `db:"chat_id"           json:"chat_id"`
	UserID           int64      `db:"user_id"           json:"user_id"`
	Username         string     `db:"username"          json:"username"`
	MessageText      string     `db:"message_text"      json:"message_text"`
	BotResponse      *string    `db:"bot_response"      json:"bot_response,omitempty"`
	Status           string     `db:"status"            json:"status"`
	DeliveryAttempts int        `db:"delivery_attempts" json:"delivery_attempts"`
	LastAttemptAt    *time.Time `db:"last_attempt_at"   json:"last_attempt_at,omitempty"`
	ErrorCode        *string    `db:"error_code"        json:"error_code,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
}

// RecordAttempt counts one delivery attempt made at at. An empty errorCode
// means the reply was delivered.
func (m *MessageLog) RecordAttempt(at time.Time, errorCode string) {
	m.DeliveryAttempts++
	m.LastAttemptAt = Ptr(at.UTC())
	if errorCode == "" {
		m.Status = MessageStatusDelivered
		m.ErrorCode = nil
		return
	}
	m.Status = MessageStatusFailed
	m.ErrorCode = Ptr(errorCode)
}

// ServiceInteraction records one outbound call attempt to a sibling service.
type ServiceInteraction struct {
	ID           int64     `db:"id"            json:"id"`
	ServiceName  string    `db:"service_name"  json:"service_name"`
	Endpoint     string    `db:"endpoint"      json:"endpoint"`
	Method       string    `db:"method"        json:"method"`
	StatusCode   *int      `db:"status_code"   json:"status_code,omitempty"`
	ResponseTime float64   `db:"response_time" json:"response_time"`
	Success      bool      `db:"success"       json:"success"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// ErrorLog records an internal failure with enough detail for operators.
type ErrorLog struct {
	ID           int64     `db:"id"            json:"id"`
	ErrorType    string    `db:"error_type"    json:"error_type"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	StackTrace   *string   `db:"stack_trace"   json:"stack_trace,omitempty"`
	Endpoint     *string   `db:"endpoint"      json:"endpoint,omitempty"`
	BotID        *string   `db:"bot_id"        json:"bot_id,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// PushNotification records one token update pushed by another service.
type PushNotification struct {
	ID               int64     `db:"id"                json:"id"`
	SourceService    string    `db:"source_service"    json:"source_service"`
	NotificationType string    `db:"notification_type" json:"notification_type"`
	BotID            *string   `db:"bot_id"            json:"bot_id,omitempty"`
	BotUsername      *string   `db:"bot_username"      json:"bot_username,omitempty"`
	Status           string    `db:"status"            json:"status"`
	ProcessingTime   *float64  `db:"processing_time"   json:"processing_time,omitempty"`
	ErrorMessage     *string   `db:"error_message"     json:"error_message,omitempty"`
	RequestData      *string   `db:"request_data"      json:"request_data,omitempty"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
}

// PushStats summarizes push notifications over a window.
type PushStats struct {
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	ByType    map[string]int `json:"by_type"`
}

// BackgroundTask is a queued unit of work drained by the poller.
type BackgroundTask struct {
	ID           int64      `db:"id"            json:"id"`
	TaskType     string     `db:"task_type"     json:"task_type"`
	TaskData     *string    `db:"task_data"     json:"task_data,omitempty"`
	Status       string     `db:"status"        json:"status"`
	Result       *string    `db:"result"        json:"result,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}

// IsTerminal reports whether the task reached completed or failed.
func (t BackgroundTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// LogKind selects an append-only log table for retention cleanup.
type LogKind string

const (
	LogWebhook            LogKind = "webhook_logs"
	LogMessage            LogKind = "message_logs"
	LogServiceInteraction LogKind = "service_interactions"
	LogError              LogKind = "error_logs"
	LogPushNotification   LogKind = "push_notifications"
)

// Ptr returns a pointer to v. Handy for the nullable model fields.
func Ptr[T any](v T) *T {
	return &v
}
