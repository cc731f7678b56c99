// Package prompt builds all prompt text for the investigation engine. It
// composes status-specific system messages and user messages from case
// context, investigation state, and memory context. Stateless — all state
// comes from parameters.
package prompt

// envelopeFormatInstructions is the machine contract appended to every
// investigating-status system message. Field names are part of the system
// contract; renaming them requires a schema version bump.
const envelopeFormatInstructions = `## Response Format

Respond with a single JSON object, no surrounding prose:

{
  "reply": "<markdown answer for the user>",
  "milestones_completed": ["<milestone key>", ...],
  "hypotheses": [
    {"statement": "<falsifiable root-cause statement>", "category": "<INFRASTRUCTURE|CODE|CONFIG|DATA|EXTERNAL|HUMAN>", "likelihood": 0.0}
  ],
  "evidence_links": [
    {"evidence_id": "<existing id, or new id with content_summary>", "supports": ["<hypothesis id>"], "refutes": [], "content_summary": "<only for new evidence>", "category": "<SYMPTOM_EVIDENCE|CAUSAL_EVIDENCE|RESOLUTION_EVIDENCE>", "source_type": "<USER_PROVIDED|SYSTEM_QUERY|DOCUMENT|LLM_INFERRED>"}
  ],
  "suggested_phase": "<optional: INTAKE|BLAST_RADIUS|TIMELINE|HYPOTHESIS|VALIDATION|SOLUTION|DOCUMENT>"
}

Milestone keys: problem_statement_confirmed, decided_to_investigate,
symptom_verified, scope_confirmed, timeline_reconstructed,
root_cause_identified, solution_proposed, solution_verified,
verification_complete, documented.

Only list milestones that this turn genuinely completed. Omit empty arrays
rather than inventing content. If you cannot produce JSON, embed the same
object in a fenced json code block inside your reply.`

// consultingTask is appended to the user message while the case is
// CONSULTING.
const consultingTask = `## Your Task
1. Restate the problem in one or two sentences and ask the user to confirm
   your understanding (milestone: problem_statement_confirmed).
2. If the symptoms point at a system fault worth a structured investigation,
   say so and ask whether to open a formal investigation (milestone:
   decided_to_investigate when the user agrees).
3. Do not propose root-cause hypotheses yet.`

// investigatingTask is appended to the user message while INVESTIGATING.
const investigatingTask = `## Your Task
Advance the investigation for this turn: answer the user, complete
milestones the conversation supports, and maintain the hypothesis board
through the response envelope. Prefer discriminating evidence over volume.`

// terminalTask is appended to the user message once the case reached
// DOCUMENTING, RESOLVED, or CLOSED.
const terminalTask = `## Your Task
The investigation is complete. Help the user document the incident:
summary, root cause, resolution, timeline, and follow-ups. Mark the
documented milestone when the write-up is accepted. Do not propose new
hypotheses or evidence.`

// alternativeCategoriesDirective is injected after anchoring mitigation
// retired hypotheses. %s = comma-separated unrepresented categories.
const alternativeCategoriesDirective = `## Broaden the Search

The current hypothesis set has collapsed onto one failure category without
conclusive evidence. Propose at least two new hypotheses from categories not
yet represented: %s. Do not restate retired hypotheses.`

// degradedModeNotice is injected while the investigation is in degraded
// mode. %d = turns without progress.
const degradedModeNotice = `## Investigation Stalled

No milestone, hypothesis, or evidence progress for %d turns. Prioritize:
- asking the user for one specific, obtainable piece of evidence
- simplifying or splitting the current line of inquiry
- stating plainly what is blocking progress`

// escalationNotice is injected once loop-backs are exhausted.
const escalationNotice = `## Escalation Required

The loop-back budget for this case is exhausted and the investigation is
stalled. Tell the user that escalation to a human incident commander is
recommended, and summarize the open questions a human should pick up.`

// transitionProposalTask instructs the model to infer investigation
// parameters from the consulting conversation.
const transitionProposalTask = `## Your Task
Infer the investigation parameters from the conversation above. Respond with
a single JSON object, no surrounding prose:

{
  "temporal_state": "<ONGOING|HISTORICAL>",
  "urgency_level": "<CRITICAL|HIGH|MEDIUM|LOW|UNKNOWN>",
  "strategy": "<MITIGATION_FIRST|ROOT_CAUSE|USER_CHOICE>",
  "confidence": 0.0,
  "reasoning": "<one short paragraph>"
}`
