package route

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// AcademicKey builds the primary dedup key for a tracked paper or review:
// the venue plus its manuscript identifier.
func AcademicKey(venue, manuscriptID string) string {
	return strings.TrimSpace(venue) + "/" + strings.TrimSpace(manuscriptID)
}

// SubjectKey is the fallback dedup key when no manuscript id was extracted:
// a hash of (account, subject). Distinct messages with an identical subject
// in one account collide on purpose — follow-ups about the same thing should
// update the same entity.
func SubjectKey(account, subject string) string {
	h := fnv.New64a()
	h.Write([]byte(account))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(subject)))
	return fmt.Sprintf("%s/subject-%016x", account, h.Sum64())
}
