package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectFile holds the schema definition for the ProjectFile entity.
// File rows stay tagged by build so past versions remain reconstructable.
type ProjectFile struct {
	ent.Schema
}

// Fields of the ProjectFile.
func (ProjectFile) Fields() []ent.Field {
	return []ent.Field{
		field.String("project_id").
			NotEmpty(),
		field.String("path").
			NotEmpty(),
		field.Text("content"),
	}
}

// Edges of the ProjectFile.
func (ProjectFile) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("build", BuildRecord.Type).
			Ref("files").
			Unique().
			Required(),
	}
}

// Indexes of the ProjectFile.
func (ProjectFile) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "path"),
	}
}
