// Package domain contains core concepts of the chat system.
// This file defines the User entity as exposed to clients.
package domain

import "time"

// User is a chat participant. The password hash never leaves the repository layer.
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Pic       string    `json:"pic,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
