package ws

import "github.com/veilproof/riskscope/internal/core/domain"

const (
	msgSubscribe    = "subscribe"
	msgUnsubscribe  = "unsubscribe"
	msgSubscribed   = "subscribed"
	msgUnsubscribed = "unsubscribed"
	msgStatusUpdate = "status_update"
	msgError        = "error"
)

type clientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

type statusPayload struct {
	Status   domain.TaskStatus `json:"status"`
	Progress int               `json:"progress"`
	Message  string            `json:"message,omitempty"`
}

type serverMessage struct {
	Type    string         `json:"type"`
	TaskID  string         `json:"task_id,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    *statusPayload `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
