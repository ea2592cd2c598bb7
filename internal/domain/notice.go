package domain

import "time"

// NoticeKind distinguishes success notices from failure notices
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is a human-readable outcome of a store operation
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Success builds a success notice
func Success(title, description string) Notice {
	return Notice{Kind: NoticeSuccess, Title: title, Description: description, Timestamp: time.Now()}
}

// Failure builds a failure notice
func Failure(title, description string) Notice {
	return Notice{Kind: NoticeFailure, Title: title, Description: description, Timestamp: time.Now()}
}
