package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CaseLease holds the schema definition for the CaseLease entity: the
// row-level lease that serializes turn execution per case across replicas.
// A worker must hold the lease to run a turn; saves are fenced on it.
type CaseLease struct {
	ent.Schema
}

// Fields of the CaseLease.
func (CaseLease) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("lease_id").
			Unique().
			Immutable(),
		field.String("case_id").
			Unique().
			Immutable().
			Comment("One lease row per case"),
		field.String("holder").
			Comment("Worker identity (pod + executor id)"),
		field.Time("acquired_at").
			Default(time.Now),
		field.Time("expires_at").
			Comment("Lease deadline; extended by heartbeats, reclaimable after"),
		field.Time("last_heartbeat_at").
			Optional().
			Nillable(),
	}
}

// Edges of the CaseLease.
func (CaseLease) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("case", FaultCase.Type).
			Ref("lease").
			Field("case_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the CaseLease.
func (CaseLease) Indexes() []ent.Index {
	return []ent.Index{
		// Orphan sweep scans by deadline
		index.Fields("expires_at"),
	}
}
