package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TurnInteraction holds the schema definition for the TurnInteraction
// entity: the audit record of one engine turn (observability, mirrors the
// engine's TurnOutcome).
type TurnInteraction struct {
	ent.Schema
}

// Fields of the TurnInteraction.
func (TurnInteraction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("turn_id").
			Unique().
			Immutable(),
		field.String("case_id").
			Immutable(),
		field.String("message_id").
			Optional().
			Nillable().
			Immutable().
			Comment("User message that triggered this turn"),
		field.Int("turn_number").
			Comment("1-based, contiguous per case"),
		field.Enum("outcome").
			NamedValues(
				"Progress", "PROGRESS",
				"EvidenceCollected", "EVIDENCE_COLLECTED",
				"Conversation", "CONVERSATION",
				"Stalled", "STALLED",
				"Error", "ERROR",
			),
		field.String("error_kind").
			Optional().
			Nillable().
			Comment("llm_unavailable, llm_malformed, ... (nil = clean turn)"),
		field.String("phase").
			Comment("Investigation phase after the turn"),
		field.String("intensity").
			Optional().
			Comment("Analysis intensity the turn ran at"),
		field.String("parse_tier").
			Optional().
			Comment("Envelope parse tier that succeeded (envelope/fenced/keyword)"),
		field.String("case_status").
			Comment("Case status after the turn"),
		field.Bool("escalation_required").
			Default(false),
		field.Text("reply").
			Comment("Assistant reply shown to the user"),
		field.JSON("milestones_completed", []string{}).
			Optional(),
		field.JSON("hypotheses_created", []string{}).
			Optional(),
		field.JSON("evidence_added", []string{}).
			Optional(),

		// Metrics
		field.Int("input_tokens").
			Optional().
			Nillable(),
		field.Int("output_tokens").
			Optional().
			Nillable(),
		field.Int("total_tokens").
			Optional().
			Nillable(),
		field.Int("duration_ms").
			Optional().
			Nillable(),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the TurnInteraction.
func (TurnInteraction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("case", FaultCase.Type).
			Ref("turns").
			Field("case_id").
			Unique().
			Required().
			Immutable(),
		edge.From("message", CaseMessage.Type).
			Ref("turn").
			Field("message_id").
			Unique().
			Immutable(),
	}
}

// Indexes of the TurnInteraction.
func (TurnInteraction) Indexes() []ent.Index {
	return []ent.Index{
		// Turn numbers stay contiguous and unique per case
		index.Fields("case_id", "turn_number").
			Unique(),
		// Chronological queries
		index.Fields("created_at"),
	}
}
