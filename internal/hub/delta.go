package hub

import (
	"slices"

	"github.com/aceystream/cardtable/internal/game"
)

// diffViews reduces a new view to the fields that changed since prev. Keys
// match the view's JSON tags so a delta frame can be merged client-side
// into the last snapshot. A nil prev yields every field.
func diffViews(prev, next *game.View) map[string]any {
	delta := make(map[string]any)

	if prev == nil {
		prev = &game.View{}
	}
	if next.Phase != prev.Phase {
		delta["phase"] = next.Phase
	}
	if next.Pot != prev.Pot {
		delta["pot"] = next.Pot
	}
	if !slices.Equal(next.DealerHand, prev.DealerHand) {
		delta["dealerHand"] = next.DealerHand
	}
	if !slices.Equal(next.CommunityCards, prev.CommunityCards) {
		delta["communityCards"] = next.CommunityCards
	}
	if !playersEqual(next.Players, prev.Players) {
		delta["players"] = next.Players
	}
	if !int64PtrEqual(next.DeadlineAt, prev.DeadlineAt) {
		delta["deadlineAt"] = next.DeadlineAt
	}
	// turnUserId is tri-state on the wire: absent means unchanged, null
	// means nobody's turn.
	if !strPtrEqual(next.TurnUserID, prev.TurnUserID) {
		if next.TurnUserID == nil {
			delta["turnUserId"] = nil
		} else {
			delta["turnUserId"] = *next.TurnUserID
		}
	}
	return delta
}

func playersEqual(a, b []game.PlayerView) bool {
	return slices.EqualFunc(a, b, func(x, y game.PlayerView) bool {
		return x.UserID == y.UserID &&
			x.Balance == y.Balance &&
			x.CurrentBet == y.CurrentBet &&
			x.Status == y.Status &&
			slices.Equal(x.Hand, y.Hand)
	})
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
