// Package access resolves source-native permission data into the normalized
// access-control entry stored per document.
package access

import (
	"sort"
	"time"

	"github.com/beaconhq/beacon/internal/connectors"
	"github.com/beaconhq/beacon/internal/models"
)

// Resolve computes the current AccessControlEntry for a document from the
// permission side channel its connector supplied. It fails closed: missing
// or incomplete permission data yields an entry with no principals and
// is_public=false, so the document stays invisible until a later fetch
// supplies real permissions.
func Resolve(documentID string, perms *connectors.PermissionSet, now time.Time) models.AccessControlEntry {
	entry := models.AccessControlEntry{
		DocumentID: documentID,
		Principals: []string{},
		Groups:     []string{},
		UpdatedAt:  now,
	}
	if perms == nil || !perms.Complete {
		return entry
	}

	entry.IsPublic = perms.IsPublic
	entry.Principals = dedupe(perms.Principals)
	entry.Groups = dedupe(perms.Groups)
	return entry
}

// dedupe returns a sorted copy without duplicates so re-resolving identical
// permissions writes identical rows.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
