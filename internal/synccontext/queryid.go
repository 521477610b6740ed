package synccontext

import "regexp"

// queryIDPattern is the allowed grammar for an incremental-pull queryId.
var queryIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,24}$`)

func validQueryID(id string) bool {
	if id == "" {
		return true // nil/absent queryId is permitted
	}
	return queryIDPattern.MatchString(id)
}
