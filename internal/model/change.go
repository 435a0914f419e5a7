package model

import "time"

// EventType is the kind of row change carried by a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ArticlesTable is the only relation this service exposes.
const ArticlesTable = "articles"

// ChangeEvent describes one insert, update or delete on a table.
// New is set for inserts and updates, Old for updates and deletes.
type ChangeEvent struct {
	Type            EventType `json:"eventType"`
	Table           string    `json:"table"`
	New             *Article  `json:"new"`
	Old             *Article  `json:"old"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}
