package service

import "github.com/Harshitk-cp/conductor/internal/domain"

// MergeAccomplished returns old extended with the ids of the active
// guidelines that were satisfied this turn. With validations nil every
// active guideline counts; otherwise only those validated as followed.
// The result keeps old's order, appends new ids in active order, and never
// drops an id from old.
func MergeAccomplished(old []string, active []domain.Guideline, validations []domain.ValidationResult) []string {
	seen := make(map[string]struct{}, len(old)+len(active))
	merged := make([]string, 0, len(old)+len(active))
	for _, id := range old {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}

	var followed map[string]bool
	if validations != nil {
		followed = make(map[string]bool, len(validations))
		for _, v := range validations {
			if v.Followed {
				followed[v.GuidelineID] = true
			}
		}
	}

	for _, g := range active {
		if followed != nil && !followed[g.ID] {
			continue
		}
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		merged = append(merged, g.ID)
	}
	return merged
}
