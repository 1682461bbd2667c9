package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConversationMessage holds the schema definition for the
// ConversationMessage entity.
type ConversationMessage struct {
	ent.Schema
}

// Fields of the ConversationMessage.
func (ConversationMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("project_id").
			NotEmpty(),
		field.Int("seq").
			Positive(),
		field.String("role").
			NotEmpty(),
		field.Text("content"),
	}
}

// Indexes of the ConversationMessage.
func (ConversationMessage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "seq").Unique(),
	}
}
