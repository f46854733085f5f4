package model

import "time"

// User is a Telegram chat subscribed to vacancy updates.
// LastCheck marks the publication time up to which vacancies
// have already been evaluated for this chat.
type User struct {
	ChatID         int64     `json:"chat_id"`
	UpdateInterval int       `json:"update_interval"` // minutes
	LastCheck      time.Time `json:"last_check"`
}
