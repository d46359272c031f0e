package domain

import "encoding/json"

// OperationType is the kind of change an edit operation carries
type OperationType string

const (
	OperationInsert OperationType = "insert"
	OperationDelete OperationType = "delete"
	OperationUpdate OperationType = "update"
	OperationMove   OperationType = "move"
)

// EditOperation is a timestamped change intent against one entity.
// Conflicts are resolved last-write-wins on Timestamp per EntityID.
type EditOperation struct {
	ID         string          `json:"id"`
	Type       OperationType   `json:"type" validate:"required,oneof=insert delete update move"`
	EntityType string          `json:"entityType" validate:"required"`
	EntityID   string          `json:"entityId" validate:"required"`
	Field      string          `json:"field,omitempty"`
	Position   *int            `json:"position,omitempty" validate:"omitempty,min=0"`
	Content    json.RawMessage `json:"content,omitempty"`
	AuthorID   string          `json:"userId"`
	Timestamp  int64           `json:"timestamp"`
	Applied    bool            `json:"applied"`
}

// Supersedes reports whether op should replace stored. Ties go to the incoming op.
func (op EditOperation) Supersedes(stored EditOperation) bool {
	return op.Timestamp >= stored.Timestamp
}

func (op EditOperation) Clone() EditOperation {
	if op.Position != nil {
		pos := *op.Position
		op.Position = &pos
	}
	if op.Content != nil {
		op.Content = append(json.RawMessage(nil), op.Content...)
	}
	return op
}
