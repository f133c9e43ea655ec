package event

import (
	"fmt"
	"strings"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// Slot is a reviewer assignment position.
type Slot int

const (
	SlotFirst  Slot = 1
	SlotSecond Slot = 2
	SlotThird  Slot = 3
)

// ParseSlot accepts first/second/third or 1/2/3.
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "1":
		return SlotFirst, nil
	case "second", "2":
		return SlotSecond, nil
	case "third", "3":
		return SlotThird, nil
	}
	return 0, apperr.Validationf("slot must be one of first, second, third; got %q", s)
}

func (s Slot) String() string {
	switch s {
	case SlotFirst:
		return "first"
	case SlotSecond:
		return "second"
	case SlotThird:
		return "third"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// reviewState is the slice of an event that decides which review, if any,
// a user owes.
type reviewState struct {
	Status                                Status
	SendDateSet                           bool
	Reviewer1ID, Reviewer2ID, Reviewer3ID *int64
	Review1Done, Review2Done, Review3Done bool
}

func stateOf(e *Event) reviewState {
	return reviewState{
		Status:      e.Status,
		SendDateSet: e.SendDate.Valid,
		Reviewer1ID: e.Reviewer1ID,
		Reviewer2ID: e.Reviewer2ID,
		Reviewer3ID: e.Reviewer3ID,
		Review1Done: e.Review1Date.Valid,
		Review2Done: e.Review2Date.Valid,
		Review3Done: e.Review3Date.Valid,
	}
}

func is(id *int64, userID int64) bool {
	return id != nil && *id == userID
}

// pendingSlot returns the lowest slot whose review userID still owes, or 0.
// It mirrors reviewerPending.
func pendingSlot(st reviewState, userID int64) Slot {
	switch {
	case is(st.Reviewer1ID, userID) && st.SendDateSet && !st.Review1Done:
		return SlotFirst
	case is(st.Reviewer2ID, userID) && st.SendDateSet && !st.Review2Done:
		return SlotSecond
	case is(st.Reviewer3ID, userID) && st.Status == StatusThirdReviewAssigned && !st.Review3Done:
		return SlotThird
	}
	return 0
}
