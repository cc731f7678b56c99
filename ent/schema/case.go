package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// FaultCase holds the schema definition for one troubleshooting case, from
// first consultation to closure. The entity is named FaultCase because ent
// derives the generated package name from the lowercased entity name and
// "case" is a Go keyword; the table is still "cases".
type FaultCase struct {
	ent.Schema
}

// Annotations of the FaultCase.
func (FaultCase) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "cases"},
	}
}

// Fields of the FaultCase.
func (FaultCase) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("case_id").
			Unique().
			Immutable(),
		field.String("title").
			Comment("Short operator-facing summary"),
		field.Text("description").
			Comment("Problem description as reported (full-text searchable)"),
		field.Enum("status").
			NamedValues(
				"Consulting", "CONSULTING",
				"Investigating", "INVESTIGATING",
				"Resolved", "RESOLVED",
				"Documenting", "DOCUMENTING",
				"Closed", "CLOSED",
			).
			Default("CONSULTING"),
		field.String("temporal_state").
			Optional().
			Comment("ONGOING or HISTORICAL, set at the consulting transition"),
		field.String("urgency_level").
			Optional().
			Comment("CRITICAL/HIGH/MEDIUM/LOW, set at the consulting transition"),
		field.String("strategy").
			Optional().
			Comment("MITIGATION_FIRST or ROOT_CAUSE, derived from temporal state and urgency"),
		field.String("owner").
			Optional().
			Nillable().
			Comment("From the auth middleware"),
		field.Text("investigation_state").
			Optional().
			Nillable().
			Comment("Serialized engine state (JSON); nil until the first committed turn"),
		field.Bool("escalation_required").
			Default(false).
			Comment("Loop-back budget exhausted; a human with deeper access should step in"),
		field.String("slack_fingerprint").
			Optional().
			Nillable().
			Comment("Dedup key for Slack notifications"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("closed_at").
			Optional().
			Nillable().
			Comment("Retention purge anchor"),
	}
}

// Edges of the FaultCase.
func (FaultCase) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("messages", CaseMessage.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("turns", TurnInteraction.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("lease", CaseLease.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("events", Event.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the FaultCase.
func (FaultCase) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("owner"),

		// Listing
		index.Fields("status", "created_at"),

		// Retention sweep over closed cases
		index.Fields("status", "closed_at"),
	}
}
