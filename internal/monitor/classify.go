package monitor

import "strings"

// Level is the coarse severity assigned to a worker output line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Category is the failure class derived from worker output text.
// CategoryNone means the line carries no recognizable failure signature.
type Category string

const (
	CategoryNone          Category = ""
	CategoryMissingDep    Category = "missing_dependency"
	CategoryConfiguration Category = "configuration"
	CategoryRateLimited   Category = "rate_limited"
	CategoryConnection    Category = "connection"
	CategoryTimeout       Category = "timeout"
	CategoryParse         Category = "parse"
)

// Categories lists every classifiable failure category, in tally order.
var Categories = []Category{
	CategoryMissingDep,
	CategoryConfiguration,
	CategoryRateLimited,
	CategoryConnection,
	CategoryTimeout,
	CategoryParse,
}

// DetectLevel classifies a line by keyword. Errors win over warnings.
func DetectLevel(line string) Level {
	l := strings.ToLower(line)
	if strings.Contains(l, "error") || strings.Contains(l, "exception") || strings.Contains(l, "traceback") {
		return LevelError
	}
	if strings.Contains(l, "warn") {
		return LevelWarn
	}
	return LevelInfo
}

// categorySignatures maps lowercase substrings to categories. Order
// matters: the first match wins, and dependency failures are checked
// before generic "error" words so a ModuleNotFoundError is never
// misfiled as a parse problem.
var categorySignatures = []struct {
	needle string
	cat    Category
}{
	{"modulenotfounderror", CategoryMissingDep},
	{"importerror", CategoryMissingDep},
	{"no module named", CategoryMissingDep},
	{"rate limit", CategoryRateLimited},
	{"too many requests", CategoryRateLimited},
	{"429", CategoryRateLimited},
	{"connection refused", CategoryConnection},
	{"connection reset", CategoryConnection},
	{"connection failed", CategoryConnection},
	{"econnrefused", CategoryConnection},
	{"timed out", CategoryTimeout},
	{"timeout", CategoryTimeout},
	{"config error", CategoryConfiguration},
	{"invalid config", CategoryConfiguration},
	{"missing config", CategoryConfiguration},
	{"configuration error", CategoryConfiguration},
	{"parse error", CategoryParse},
	{"unmarshal error", CategoryParse},
	{"decode error", CategoryParse},
	{"json decode", CategoryParse},
}

// DetectErrorType matches a line against known failure signatures and
// returns CategoryNone when nothing matches.
func DetectErrorType(line string) Category {
	l := strings.ToLower(line)
	for _, s := range categorySignatures {
		if strings.Contains(l, s.needle) {
			return s.cat
		}
	}
	return CategoryNone
}
