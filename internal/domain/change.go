package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Table names a remote table mirrored by the store
type Table string

const (
	TablePlayers Table = "players"
	TableGames   Table = "games"
	TableScores  Table = "scores"
)

// Tables lists every mirrored table in load order
var Tables = []Table{TablePlayers, TableGames, TableScores}

// Valid reports whether t is one of the mirrored tables
func (t Table) Valid() bool {
	switch t {
	case TablePlayers, TableGames, TableScores:
		return true
	}
	return false
}

// EventType is the kind of row change reported by the change feed
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RowRef identifies a deleted row
type RowRef struct {
	ID string `json:"id"`
}

// ChangeEvent is a row-level change pushed by the change feed.
// New carries the full row for INSERT and UPDATE, Old carries the id for DELETE.
type ChangeEvent struct {
	Type  EventType       `json:"eventType"`
	Table Table           `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   *RowRef         `json:"old,omitempty"`
}

// HasNew reports whether the event carries a non-null new row
func (e ChangeEvent) HasNew() bool {
	trimmed := bytes.TrimSpace(e.New)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// OldID returns the id of the deleted row, or "" when absent
func (e ChangeEvent) OldID() string {
	if e.Old == nil {
		return ""
	}
	return e.Old.ID
}

// NewChange builds an INSERT or UPDATE event carrying row
func NewChange(typ EventType, table Table, row any) (ChangeEvent, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("marshaling row: %w", err)
	}
	return ChangeEvent{Type: typ, Table: table, New: data}, nil
}

// DeleteChange builds a DELETE event for the row with the given id
func DeleteChange(table Table, id string) ChangeEvent {
	return ChangeEvent{Type: EventDelete, Table: table, Old: &RowRef{ID: id}}
}

// DecodeChange parses a change feed payload
func DecodeChange(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decoding change event: %w", err)
	}
	if !ev.Table.Valid() {
		return ChangeEvent{}, fmt.Errorf("%w: %q", ErrUnknownTable, ev.Table)
	}
	switch ev.Type {
	case EventInsert, EventUpdate:
		if !ev.HasNew() {
			return ChangeEvent{}, fmt.Errorf("%w: %s without new row", ErrInvalidChange, ev.Type)
		}
	case EventDelete:
		if ev.OldID() == "" {
			return ChangeEvent{}, fmt.Errorf("%w: DELETE without old id", ErrInvalidChange)
		}
	default:
		return ChangeEvent{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidChange, ev.Type)
	}
	return ev, nil
}

// DecodeRow unmarshals the new row of an event into T
func DecodeRow[T any](ev ChangeEvent) (T, error) {
	var row T
	if !ev.HasNew() {
		return row, fmt.Errorf("%w: no new row", ErrInvalidChange)
	}
	if err := json.Unmarshal(ev.New, &row); err != nil {
		return row, fmt.Errorf("decoding %s row: %w", ev.Table, err)
	}
	return row, nil
}
