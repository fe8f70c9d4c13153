package session

import "github.com/chipheocrypto/c124/internal/domain"

// Housekeeping transitions never involve an order. Session-bearing states are
// only entered and left through Store operations.
var housekeeping = map[domain.RoomStatus][]domain.RoomStatus{
	domain.RoomAvailable: {domain.RoomError},
	domain.RoomCleaning:  {domain.RoomAvailable, domain.RoomError},
	domain.RoomError:     {domain.RoomAvailable, domain.RoomCleaning},
}

func CanHousekeep(from, to domain.RoomStatus) bool {
	for _, allowed := range housekeeping[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidDiscardTarget reports whether a forced discard may leave the room in to.
func ValidDiscardTarget(to domain.RoomStatus) bool {
	return to == domain.RoomAvailable || to == domain.RoomCleaning || to == domain.RoomError
}
