package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// BuildRecord holds the schema definition for the BuildRecord entity.
type BuildRecord struct {
	ent.Schema
}

// Fields of the BuildRecord.
func (BuildRecord) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Unique().
			Immutable(),
		field.String("project_id").
			NotEmpty(),
		field.Int("version").
			Positive(),
		field.Enum("status").
			Values("pending", "success", "failed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the BuildRecord.
func (BuildRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("files", ProjectFile.Type),
		edge.To("chunks", ChunkEmbedding.Type),
	}
}

// Indexes of the BuildRecord.
func (BuildRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "version").Unique(),
	}
}
