// Package memory implements the hierarchical memory manager: it organizes
// per-turn snapshots into hot/warm/cold tiers, compresses them under fixed
// caps, and emits a deterministic, token-bounded context block for prompt
// composition.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// Section headings of the prompt context block. Tests and prompt templates
// rely on these staying stable.
const (
	HeadingHot  = "### Recent Turns"
	HeadingWarm = "### Active Hypothesis Context"
	HeadingCold = "### Archived Findings"
)

// charsPerToken is the estimation heuristic applied to snapshot content.
const charsPerToken = 4

// maxSummaryLen bounds the verbatim-ish content kept per snapshot.
const maxSummaryLen = 480

// Config bounds the memory manager.
type Config struct {
	MaxContextTokens int
	HotSnapshots     int
	WarmSnapshots    int
	ColdSnapshots    int
}

// DefaultConfig returns the stock budget: 1600 context tokens, hot ≤ 3,
// warm ≤ 5, cold ≤ 10 snapshots.
func DefaultConfig() Config {
	return Config{MaxContextTokens: 1600, HotSnapshots: 3, WarmSnapshots: 5, ColdSnapshots: 10}
}

// Manager organizes and compresses investigation memory. Stateless aside
// from configuration; safe for concurrent use across cases.
type Manager struct {
	cfg Config
}

// NewManager builds a memory manager, filling zero config fields with
// defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = def.MaxContextTokens
	}
	if cfg.HotSnapshots <= 0 {
		cfg.HotSnapshots = def.HotSnapshots
	}
	if cfg.WarmSnapshots <= 0 {
		cfg.WarmSnapshots = def.WarmSnapshots
	}
	if cfg.ColdSnapshots <= 0 {
		cfg.ColdSnapshots = def.ColdSnapshots
	}
	return &Manager{cfg: cfg}
}

// EstimateTokens applies the chars-per-token heuristic.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + charsPerToken - 1) / charsPerToken
}

// TurnDigest is what the engine hands the manager after a turn commits.
type TurnDigest struct {
	TurnNumber        int
	Summary           string
	KeyInsights       []string
	EvidenceIDs       []string
	HypothesisUpdates []string
	ConfidenceDelta   float64
}

// RecordTurn appends a hot snapshot for a completed turn and re-organizes
// the tiers.
func (m *Manager) RecordTurn(s *state.InvestigationState, d TurnDigest, now time.Time) {
	summary := d.Summary
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen-1] + "…"
	}
	snap := state.MemorySnapshot{
		SnapshotID:        fmt.Sprintf("mem-%03d-%03d", d.TurnNumber, d.TurnNumber),
		TurnRange:         state.TurnRange{Start: d.TurnNumber, End: d.TurnNumber},
		Tier:              state.TierHot,
		ContentSummary:    summary,
		KeyInsights:       d.KeyInsights,
		EvidenceIDs:       d.EvidenceIDs,
		HypothesisUpdates: d.HypothesisUpdates,
		ConfidenceDelta:   d.ConfidenceDelta,
		CreatedAt:         now,
	}
	snap.TokenEstimate = snapshotTokens(snap)
	s.Memory.Hot = append(s.Memory.Hot, snap)
	m.Organize(s)
}

// Organize re-tiers every snapshot: the last three turns stay hot,
// snapshots touching currently-ACTIVE hypotheses are warm, everything else
// is cold with evidence-id deduplication. Caps are enforced so the memory
// invariants hold after every turn, and the operation is idempotent.
func (m *Manager) Organize(s *state.InvestigationState) {
	all := gather(s.Memory)
	if len(all) == 0 {
		s.Memory = emptyMemory()
		return
	}

	// Oldest first, deterministic
	sort.Slice(all, func(i, j int) bool {
		if all[i].TurnRange.End != all[j].TurnRange.End {
			return all[i].TurnRange.End < all[j].TurnRange.End
		}
		return all[i].SnapshotID < all[j].SnapshotID
	})

	lastTurn := s.LastTurnNumber()
	for _, snap := range all {
		if snap.TurnRange.End > lastTurn {
			lastTurn = snap.TurnRange.End
		}
	}
	hotFloor := lastTurn - 2 // covers the last 3 turns

	active := make(map[string]struct{})
	for _, h := range s.HypothesesByStatus(state.HypothesisActive) {
		active[h.ID] = struct{}{}
	}

	var hot, warm, cold []state.MemorySnapshot
	for _, snap := range all {
		switch {
		case snap.TurnRange.End >= hotFloor:
			snap.Tier = state.TierHot
			hot = append(hot, snap)
		case touchesAny(snap.HypothesisUpdates, active):
			snap.Tier = state.TierWarm
			warm = append(warm, snap)
		default:
			snap.Tier = state.TierCold
			cold = append(cold, snap)
		}
	}

	// Overflow demotes oldest-first: hot → warm, warm → cold.
	for len(hot) > m.cfg.HotSnapshots {
		demoted := hot[0]
		demoted.Tier = state.TierWarm
		warm = append([]state.MemorySnapshot{demoted}, warm...)
		hot = hot[1:]
	}
	for len(warm) > m.cfg.WarmSnapshots {
		demoted := warm[0]
		demoted.Tier = state.TierCold
		cold = append([]state.MemorySnapshot{demoted}, cold...)
		warm = warm[1:]
	}

	cold = dedupByEvidence(cold)
	for len(cold) > m.cfg.ColdSnapshots {
		cold = cold[1:] // drop oldest
	}

	s.Memory = state.HierarchicalMemory{
		Hot:  orEmptySnapshots(hot),
		Warm: orEmptySnapshots(warm),
		Cold: orEmptySnapshots(cold),
	}
}

// Compress re-organizes the tiers and recomputes every token estimate.
// Invoked on the configured cadence and whenever the engine needs the
// budget re-established before composing a prompt.
func (m *Manager) Compress(s *state.InvestigationState) {
	m.Organize(s)
	for _, tier := range []*[]state.MemorySnapshot{&s.Memory.Hot, &s.Memory.Warm, &s.Memory.Cold} {
		for i := range *tier {
			(*tier)[i].TokenEstimate = snapshotTokens((*tier)[i])
		}
	}
}

// contextSelection is the deterministic pick of snapshots for one prompt.
type contextSelection struct {
	hot, warm, cold []state.MemorySnapshot
	tokens          int
}

// selectContext orders hot most recent first, warm by strongest referenced
// hypothesis, cold most recent first, then includes snapshots greedily,
// skipping any whose estimate would push the total past the budget.
func (m *Manager) selectContext(s *state.InvestigationState, maxTokens int) contextSelection {
	if maxTokens <= 0 {
		maxTokens = m.cfg.MaxContextTokens
	}

	hot := make([]state.MemorySnapshot, len(s.Memory.Hot))
	copy(hot, s.Memory.Hot)
	sort.SliceStable(hot, func(i, j int) bool { return hot[i].TurnRange.End > hot[j].TurnRange.End })

	warm := make([]state.MemorySnapshot, len(s.Memory.Warm))
	copy(warm, s.Memory.Warm)
	conf := func(snap state.MemorySnapshot) float64 {
		best := -1.0
		for _, id := range snap.HypothesisUpdates {
			if h := s.FindHypothesis(id); h != nil && h.Confidence > best {
				best = h.Confidence
			}
		}
		return best
	}
	sort.SliceStable(warm, func(i, j int) bool {
		ci, cj := conf(warm[i]), conf(warm[j])
		if ci != cj {
			return ci > cj
		}
		return warm[i].TurnRange.End > warm[j].TurnRange.End
	})

	cold := make([]state.MemorySnapshot, len(s.Memory.Cold))
	copy(cold, s.Memory.Cold)
	sort.SliceStable(cold, func(i, j int) bool { return cold[i].TurnRange.End > cold[j].TurnRange.End })

	var sel contextSelection
	take := func(snaps []state.MemorySnapshot) []state.MemorySnapshot {
		var out []state.MemorySnapshot
		for _, snap := range snaps {
			cost := snap.TokenEstimate
			if cost == 0 {
				cost = snapshotTokens(snap)
			}
			if sel.tokens+cost > maxTokens {
				continue
			}
			out = append(out, snap)
			sel.tokens += cost
		}
		return out
	}
	sel.hot = take(hot)
	sel.warm = take(warm)
	sel.cold = take(cold)
	return sel
}

// ContextForPrompt renders the bounded context block with the three stable
// section headings. Output is byte-identical across calls on the same
// state, and the total estimated tokens never exceed the budget.
func (m *Manager) ContextForPrompt(s *state.InvestigationState, maxTokens int) string {
	sel := m.selectContext(s, maxTokens)

	var b strings.Builder
	writeSection := func(heading string, snaps []state.MemorySnapshot) {
		if len(snaps) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading)
		b.WriteString("\n")
		for _, snap := range snaps {
			writeSnapshot(&b, snap)
		}
	}
	writeSection(HeadingHot, sel.hot)
	writeSection(HeadingWarm, sel.warm)
	writeSection(HeadingCold, sel.cold)
	return b.String()
}

// ContextTokens reports the estimated token total ContextForPrompt would
// consume, for invariant checks.
func (m *Manager) ContextTokens(s *state.InvestigationState, maxTokens int) int {
	return m.selectContext(s, maxTokens).tokens
}

func writeSnapshot(b *strings.Builder, snap state.MemorySnapshot) {
	if snap.TurnRange.Start == snap.TurnRange.End {
		fmt.Fprintf(b, "- [turn %d] %s\n", snap.TurnRange.End, snap.ContentSummary)
	} else {
		fmt.Fprintf(b, "- [turns %d-%d] %s\n", snap.TurnRange.Start, snap.TurnRange.End, snap.ContentSummary)
	}
	for _, insight := range snap.KeyInsights {
		fmt.Fprintf(b, "  * %s\n", insight)
	}
}

func snapshotTokens(snap state.MemorySnapshot) int {
	total := EstimateTokens(snap.ContentSummary)
	for _, insight := range snap.KeyInsights {
		total += EstimateTokens(insight)
	}
	return total
}

func gather(mem state.HierarchicalMemory) []state.MemorySnapshot {
	all := make([]state.MemorySnapshot, 0, len(mem.Hot)+len(mem.Warm)+len(mem.Cold))
	all = append(all, mem.Hot...)
	all = append(all, mem.Warm...)
	all = append(all, mem.Cold...)
	return all
}

func touchesAny(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// dedupByEvidence drops cold snapshots whose evidence ids are all already
// covered by a newer cold snapshot. Input and output are oldest-first.
func dedupByEvidence(cold []state.MemorySnapshot) []state.MemorySnapshot {
	seen := make(map[string]struct{})
	kept := make([]state.MemorySnapshot, 0, len(cold))
	for i := len(cold) - 1; i >= 0; i-- { // newest first
		snap := cold[i]
		redundant := len(snap.EvidenceIDs) > 0
		for _, id := range snap.EvidenceIDs {
			if _, ok := seen[id]; !ok {
				redundant = false
			}
		}
		if redundant {
			continue
		}
		for _, id := range snap.EvidenceIDs {
			seen[id] = struct{}{}
		}
		kept = append(kept, snap)
	}
	// restore oldest-first
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func orEmptySnapshots(snaps []state.MemorySnapshot) []state.MemorySnapshot {
	if snaps == nil {
		return []state.MemorySnapshot{}
	}
	return snaps
}

func emptyMemory() state.HierarchicalMemory {
	return state.HierarchicalMemory{
		Hot:  []state.MemorySnapshot{},
		Warm: []state.MemorySnapshot{},
		Cold: []state.MemorySnapshot{},
	}
}
