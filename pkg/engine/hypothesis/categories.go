package hypothesis

import (
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// defaultCategoryKeywords is the built-in category inference lexicon,
// derived from a calibration pass over incident write-ups. Overridable via
// configuration.
func defaultCategoryKeywords() map[state.HypothesisCategory][]string {
	return map[state.HypothesisCategory][]string{
		state.CategoryInfrastructure: {
			"server", "node", "network", "dns", "disk", "cpu", "memory",
			"kubernetes", "pod", "container", "load balancer", "cluster",
			"hardware", "vm", "instance", "capacity", "connection pool",
		},
		state.CategoryCode: {
			"bug", "regression", "deploy", "release", "rollout", "code",
			"exception", "nil pointer", "null pointer", "race condition",
			"leak", "commit", "version", "library",
		},
		state.CategoryConfig: {
			"config", "configuration", "flag", "environment variable",
			"setting", "parameter", "toggle", "yaml", "certificate", "tls",
			"credential", "quota", "limit",
		},
		state.CategoryData: {
			"data", "database", "schema", "migration", "corrupt", "query",
			"index", "row", "table", "replication", "backup",
		},
		state.CategoryExternal: {
			"third-party", "third party", "vendor", "upstream", "provider",
			"rate limit", "outage", "dependency", "external", "saas",
		},
		state.CategoryHuman: {
			"operator", "manual", "human", "mistake", "accidental",
			"typo", "misconfigured by", "deleted by", "fat-finger",
		},
	}
}

// InferCategory lexically classifies a hypothesis statement: the category
// whose keywords match the statement most often wins, ties resolved in the
// stable category order. UNKNOWN when nothing matches.
func (m *Manager) InferCategory(statement string) state.HypothesisCategory {
	lowered := strings.ToLower(statement)

	best := state.CategoryUnknown
	bestHits := 0
	for _, category := range state.AllCategories() {
		hits := 0
		for _, kw := range m.keywords[category] {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = category
			bestHits = hits
		}
	}
	return best
}
