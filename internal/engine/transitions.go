package engine

import "nowait/queue-service/internal/models"

var transitionMap = map[string][]string{
	"approve":   {models.StatusPending},
	"call_next": {models.StatusWaiting, models.StatusTimeToMove, models.StatusArrived, models.StatusEmergency},
	"travel":    {models.StatusWaiting},
	"arrive":    {models.StatusWaiting, models.StatusTimeToMove},
	"complete":  {models.StatusInSession},
	"skip":      {models.StatusWaiting, models.StatusTimeToMove, models.StatusArrived, models.StatusEmergency, models.StatusInSession},
	"cancel":    {models.StatusWaiting, models.StatusTimeToMove, models.StatusArrived, models.StatusEmergency, models.StatusInSession},
}

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
