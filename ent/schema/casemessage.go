package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CaseMessage holds the schema definition for the CaseMessage entity:
// the user/assistant conversation on a case. User messages are accepted
// asynchronously and carry a processing status; assistant messages are
// written when the corresponding turn commits.
type CaseMessage struct {
	ent.Schema
}

// Fields of the CaseMessage.
func (CaseMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("case_id").
			Immutable(),
		field.Enum("role").
			Values("user", "assistant"),
		field.Text("content").
			Comment("Message text"),
		field.String("author").
			Optional().
			Nillable().
			Comment("User identity for user messages"),
		field.Enum("status").
			Values("queued", "processing", "completed", "failed").
			Default("queued").
			Comment("Turn execution lifecycle; assistant messages are written as completed"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Int("turn_number").
			Optional().
			Nillable().
			Comment("Turn that consumed (user) or produced (assistant) this message"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the CaseMessage.
func (CaseMessage) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("case", FaultCase.Type).
			Ref("messages").
			Field("case_id").
			Unique().
			Required().
			Immutable(),
		edge.To("turn", TurnInteraction.Type).
			Unique().
			Comment("Turn triggered by this user message"),
	}
}

// Indexes of the CaseMessage.
func (CaseMessage) Indexes() []ent.Index {
	return []ent.Index{
		// Conversation ordering
		index.Fields("case_id", "created_at"),
		// Queued-work reclaim after a worker crash
		index.Fields("status", "created_at"),
	}
}
