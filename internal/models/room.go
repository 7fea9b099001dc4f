package models

import "time"

// RoomStatus is the public view of a room. Client ids are never included.
type RoomStatus struct {
	Code           string    `json:"code"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// SessionResponse carries a freshly issued session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClientConfig is what browsers and CLI peers need before negotiating.
type ClientConfig struct {
	ICEServers []ICEServer `json:"iceServers"`
}

type ICEServer struct {
	URLs []string `json:"urls"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
