package rbac

// AuthorityLevel is the highest role level across active, resolvable assignments.
// A user without any has level 0.
func AuthorityLevel(assignments []Assignment) int {
	level := 0
	for _, a := range assignments {
		if !a.IsActive || a.Role == nil {
			continue
		}
		if a.Role.Level > level {
			level = a.Role.Level
		}
	}
	return level
}

// CanManage reports whether manager strictly outranks target. Equal authority never
// manages.
func CanManage(manager, target []Assignment) bool {
	return AuthorityLevel(manager) > AuthorityLevel(target)
}

// Locations returns the distinct locations of active assignments in first-seen order.
func Locations(assignments []Assignment) []string {
	seen := make(map[string]struct{}, len(assignments))
	var out []string
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		if _, ok := seen[a.LocationID]; ok {
			continue
		}
		seen[a.LocationID] = struct{}{}
		out = append(out, a.LocationID)
	}
	return out
}

// HasLocationAccess reports whether any active assignment targets locationID.
func HasLocationAccess(assignments []Assignment, locationID string) bool {
	for _, a := range assignments {
		if a.IsActive && a.LocationID == locationID {
			return true
		}
	}
	return false
}

// GroupByCategory buckets catalog entries by category, preserving input order.
func GroupByCategory(perms []Permission) map[string][]Permission {
	out := make(map[string][]Permission)
	for _, p := range perms {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}
