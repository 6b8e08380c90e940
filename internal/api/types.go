package api

import (
	"time"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
)

// OperatorAuthRequest represents the request payload for operator authentication
type OperatorAuthRequest struct {
	OperatorID string `json:"operator_id" validate:"required"`
	PIN        string `json:"pin" validate:"required"`
}

// OperatorAuthResponse represents the response payload for operator authentication
type OperatorAuthResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	OperatorID string    `json:"operator_id"`
}

// CameraRequest toggles the assistant's vision feed
type CameraRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ProductsResponse lists products
type ProductsResponse struct {
	Products []entities.Product `json:"products"`
	Count    int                `json:"count"`
}

// LowStockResponse lists products below the threshold
type LowStockResponse struct {
	Products  []entities.Product `json:"products"`
	Count     int                `json:"count"`
	Threshold float64            `json:"threshold"`
}

// SessionsResponse lists recent assistant sessions
type SessionsResponse struct {
	Sessions []*entities.Session `json:"sessions"`
	Count    int                 `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
