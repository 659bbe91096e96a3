package serviceaccount

// Apply folds one event into state and returns the new state.
// It performs no validation: events record decisions that were already made.
// state is never modified.
func Apply(state State, event Event) State {
	next := state.Clone()

	switch e := event.(type) {
	case Created:
		next = State{
			ID:               e.ServiceAccountID,
			TenantID:         e.TenantID,
			ClientID:         e.ClientID,
			ClientSecretHash: e.ClientSecretHash,
			Salt:             e.Salt,
			Description:      e.Description,
			Status:           e.Status,
			Roles:            append([]string{}, e.Roles...),
			CreatedAt:        e.CreatedAt,
			ExpiresAt:        cloneTime(e.ExpiresAt),
		}
	case DetailsUpdated:
		next.Description = e.Description
		next.Status = e.Status
		next.ExpiresAt = cloneTime(e.ExpiresAt)
	case RolesAssigned:
		next.Roles = append([]string{}, e.AllEffectiveRoles...)
	case RolesRemoved:
		next.Roles = append([]string{}, e.AllEffectiveRoles...)
	case SecretRotated:
		next.ClientSecretHash = e.NewClientSecretHash
		next.Salt = e.NewSalt
		rotatedAt := e.OccurredOn
		next.SecretRotatedAt = &rotatedAt
	case Deactivated:
		next.Status = StatusInactive
	case Activated:
		next.Status = StatusActive
	default:
		return next
	}

	next.Version = state.Version + 1
	return next
}

// Replay folds events, in append order, starting from the empty state
func Replay(events []Event) State {
	var state State
	for _, e := range events {
		state = Apply(state, e)
	}
	return state
}
