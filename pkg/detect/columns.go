// Package detect guesses which raw columns hold the case id, activity and
// timestamp of an event log.
package detect

import (
	"strings"
	"unicode/utf8"

	perrors "github.com/logflow/processlens/pkg/errors"
)

// Role names. A column whose lower-cased name equals a role name gets the
// exact-match bonus.
const (
	RoleCaseID    = "case_id"
	RoleActivity  = "activity"
	RoleTimestamp = "timestamp"
)

const (
	exactMatchScore = 10.0
	keywordScore    = 3.0
)

// Keywords per role, matched as substrings of the lower-cased column name.
var roleKeywords = map[string][]string{
	RoleTimestamp: {"start", "begin", "create", "date", "time", "timestamp"},
	RoleActivity:  {"activity", "task", "action", "state", "status", "event", "operation"},
	RoleCaseID:    {"case", "id", "label", "instance", "identifier", "ticket", "trace"},
}

// Columns maps each role to a column name.
type Columns struct {
	CaseID    string `yaml:"case_id" json:"case_id"`
	Activity  string `yaml:"activity" json:"activity"`
	Timestamp string `yaml:"timestamp" json:"timestamp"`
}

// Complete reports whether every role is populated.
func (c Columns) Complete() bool {
	return c.CaseID != "" && c.Activity != "" && c.Timestamp != ""
}

// SuggestColumns picks the best column for each role independently. The
// same column may win more than one role; see Duplicates. When no column
// scores above zero for a role, the first column is used.
func SuggestColumns(columns []string) (Columns, error) {
	if len(columns) == 0 {
		return Columns{}, perrors.NoColumns()
	}
	return Columns{
		CaseID:    bestColumn(columns, RoleCaseID),
		Activity:  bestColumn(columns, RoleActivity),
		Timestamp: bestColumn(columns, RoleTimestamp),
	}, nil
}

// Score returns the role score of a single column name.
func Score(column, role string) float64 {
	lower := strings.ToLower(column)
	score := 0.0
	if lower == role {
		score += exactMatchScore
	}
	// Shorter names win ties between equal keyword counts.
	tieBreak := 1.0 / float64(utf8.RuneCountInString(column))
	for _, kw := range roleKeywords[role] {
		if strings.Contains(lower, kw) {
			score += keywordScore + tieBreak
		}
	}
	return score
}

func bestColumn(columns []string, role string) string {
	best := ""
	bestScore := 0.0
	for _, col := range columns {
		if col == "" {
			continue
		}
		// Strictly greater: the earlier column keeps a tie.
		if s := Score(col, role); s > bestScore {
			best, bestScore = col, s
		}
	}
	if best == "" {
		return columns[0]
	}
	return best
}

// Duplicates lists the roles that share a column with an earlier role,
// in case_id, activity, timestamp order.
func Duplicates(c Columns) []string {
	seen := map[string]string{}
	var dups []string
	for _, rc := range []struct{ role, col string }{
		{RoleCaseID, c.CaseID},
		{RoleActivity, c.Activity},
		{RoleTimestamp, c.Timestamp},
	} {
		if _, ok := seen[rc.col]; ok {
			dups = append(dups, rc.role)
			continue
		}
		seen[rc.col] = rc.role
	}
	return dups
}
