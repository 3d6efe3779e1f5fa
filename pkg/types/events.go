package types

import "time"

// Realtime event names, shared between server and clients.
const (
	EventEquipmentStatus       = "equipment:status"
	EventEquipmentStatusUpdate = "equipment:status:update"
	EventAlertNew              = "alert:new"
	EventNotificationNew       = "notification:new"

	EventSubscribeEquipment   = "equipment:subscribe"
	EventUnsubscribeEquipment = "equipment:unsubscribe"
)

type EquipmentStatusUpdated struct {
	EquipmentID string          `json:"equipmentID"`
	Status      EquipmentStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

type AlertCreated struct {
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	UserID    string    `json:"userID"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
