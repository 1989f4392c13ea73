// Package models contains the persisted chat records.
package models

import "time"

// ChatMessage is a message posted into an avaria conversation. ID and SentAt
// are assigned by the server when the message is stored.
type ChatMessage struct {
	ID       string    `json:"id"`
	AvariaID string    `json:"avariaId"`
	SenderID string    `json:"senderId"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sentAt"`
}

// ReadReceipt records that a user has read a chat message.
type ReadReceipt struct {
	ID            string    `json:"id"`
	ChatMessageID string    `json:"chatMessageId"`
	UserID        string    `json:"userId"`
	ReadAt        time.Time `json:"readAt"`
}
