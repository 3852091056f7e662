package domain

import "time"

type FollowUpStatus string

const (
	StatusPending   FollowUpStatus = "pending"
	StatusSent      FollowUpStatus = "sent"
	StatusCancelled FollowUpStatus = "cancelled"
	StatusFailed    FollowUpStatus = "failed"
)

// Channel records how the message body was produced.
type Channel string

const (
	ChannelManual    Channel = "manual"
	ChannelTemplate  Channel = "template"
	ChannelAutomatic Channel = "automatic"
)

// FollowUp is one scheduled or recurring outbound message and its lifecycle.
// One-shot rows are due at ScheduledAt, recurring rows at NextRunAt.
type FollowUp struct {
	ID               int64          `db:"id" json:"id"`
	RecipientID      int64          `db:"recipient_id" json:"recipientId"`
	RecipientPhone   string         `db:"recipient_phone" json:"recipientPhone"`
	Kind             string         `db:"kind" json:"kind"`
	Channel          Channel        `db:"channel" json:"channel"`
	Body             string         `db:"body" json:"body"`
	Status           FollowUpStatus `db:"status" json:"status"`
	IsRecurring      bool           `db:"is_recurring" json:"isRecurring"`
	Cadence          *Cadence       `db:"cadence" json:"cadence,omitempty"`
	ScheduledAt      *time.Time     `db:"scheduled_at" json:"scheduledAt,omitempty"`
	NextRunAt        *time.Time     `db:"next_run_at" json:"nextRunAt,omitempty"`
	SentAt           *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
	GatewayMessageID *string        `db:"gateway_message_id" json:"gatewayMessageId,omitempty"`
	LastError        *string        `db:"last_error" json:"lastError,omitempty"`
	ResponseReceived bool           `db:"response_received" json:"responseReceived"`
	RespondedAt      *time.Time     `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// Recipient is the slice of a lead record the engine reads and writes.
type Recipient struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Phone          string     `db:"phone" json:"phone"`
	LastMessageAt  *time.Time `db:"last_message_at" json:"lastMessageAt,omitempty"`
	Responded      bool       `db:"responded" json:"responded"`
	LastResponseAt *time.Time `db:"last_response_at" json:"lastResponseAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

type PendingCounts struct {
	ScheduledPending int64 `json:"scheduledPending"`
	RecurringPending int64 `json:"recurringPending"`
	TotalPending     int64 `json:"totalPending"`
}

// DispatchSummary is the outcome of one dispatch pass.
type DispatchSummary struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// AllFailed reports whether rows were attempted and none went out.
func (s DispatchSummary) AllFailed() bool {
	return s.Attempted > 0 && s.Sent == 0 && s.Failed > 0
}

// GatewayReceipt is what the messaging gateway returns for an accepted send.
type GatewayReceipt struct {
	MessageID string `json:"messageId"`
}

// InboundMessage is a gateway webhook event normalized for correlation.
type InboundMessage struct {
	EventID string `json:"eventId"`
	Phone   string `json:"phone"`
	Text    string `json:"text"`
	FromMe  bool   `json:"fromMe"`
	IsGroup bool   `json:"isGroup"`
}

type AnalysisRequest struct {
	Text        string `json:"text"`
	RecipientID int64  `json:"recipientId"`
	FollowUpID  int64  `json:"followUpId"`
}

type AnalysisResult struct {
	IsResponse bool   `json:"isResponse"`
	WantsStop  bool   `json:"wantsStop"`
	Label      string `json:"label,omitempty"`
}
