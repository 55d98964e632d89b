package queue

import "github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"

var transitionMap = map[string][]string{
	"check_in":   {models.StatusBooked},
	"call_next":  {models.StatusCheckedIn},
	"complete":   {models.StatusInProgress},
	"no_show":    {models.StatusCheckedIn, models.StatusInProgress},
	"prioritize": {models.StatusCheckedIn},
	"skip":       {models.StatusCheckedIn, models.StatusInProgress},
}

// ValidTransition reports whether the appointment's current status allows
// the queue action. Unknown actions are never valid.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
