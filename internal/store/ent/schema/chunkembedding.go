package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ChunkEmbedding holds the schema definition for the ChunkEmbedding
// entity. Chunks are superseded wholesale per build version, never
// mutated in place.
type ChunkEmbedding struct {
	ent.Schema
}

// Fields of the ChunkEmbedding.
func (ChunkEmbedding) Fields() []ent.Field {
	return []ent.Field{
		field.String("project_id").
			NotEmpty(),
		field.String("file_path").
			NotEmpty(),
		field.Int("chunk_index").
			NonNegative(),
		field.Text("content"),
		field.JSON("vector", []float32{}),
	}
}

// Edges of the ChunkEmbedding.
func (ChunkEmbedding) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("build", BuildRecord.Type).
			Ref("chunks").
			Unique().
			Required(),
	}
}

// Indexes of the ChunkEmbedding.
func (ChunkEmbedding) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "file_path"),
	}
}
