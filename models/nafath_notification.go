package models

import "time"

// NafathNotification is the payload the provider pushes once a user acts in the Nafath app.
// Field names follow the provider's casing and are matched exactly on receipt.
type NafathNotification struct {
	Password   string `json:"Password"`
	Status     string `json:"Status"`
	NationalId string `json:"NationalId"`
}

// NafathResult is what gets recorded after a notification is accepted.
type NafathResult struct {
	NationalId string    `json:"national_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

type NafathInitRequest struct {
	UserId string `json:"user_id"`
}

type WebhookAck struct {
	Ok bool `json:"ok"`
}

type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}
