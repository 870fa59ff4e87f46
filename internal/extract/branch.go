package extract

// Canonical branch names recognized by the service, in match-priority order.
// Values outside this set are dropped rather than stored verbatim.
var CanonicalBranches = []string{"강남", "부산", "서울", "대전"}

var branchAliases = map[string]string{
	"강남": "강남",
	"부산": "부산",
	"서울": "서울",
	"대전": "대전",
}

// NormalizeBranch maps a raw branch value onto the canonical set. The second
// return is false when the value is outside the whitelist.
func NormalizeBranch(raw string) (string, bool) {
	normalized, ok := branchAliases[raw]
	return normalized, ok
}
