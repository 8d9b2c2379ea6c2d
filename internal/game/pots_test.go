package game

import (
	"testing"

	"github.com/aceystream/cardtable/internal/deck"
)

func potPlayer(userID string, contributed int64, status Status) *Player {
	return &Player{
		UserID:      userID,
		Contributed: contributed,
		Status:      status,
		Hands:       []*Hand{{Cards: make([]deck.Card, 2)}},
	}
}

func TestBuildPotsNoAllIns(t *testing.T) {
	players := []*Player{
		potPlayer("alice", 100, StatusActive),
		potPlayer("bob", 100, StatusActive),
		potPlayer("carol", 100, StatusActive),
	}

	pots := buildPots(players)
	if len(pots) != 1 {
		t.Fatalf("expected a single pot, got %d", len(pots))
	}
	if pots[0].Amount != 300 {
		t.Errorf("expected pot of 300, got %d", pots[0].Amount)
	}
	if len(pots[0].Eligible) != 3 {
		t.Errorf("expected 3 eligible players, got %d", len(pots[0].Eligible))
	}
}

func TestBuildPotsOneAllIn(t *testing.T) {
	players := []*Player{
		potPlayer("alice", 50, StatusAllIn),
		potPlayer("bob", 100, StatusActive),
		potPlayer("carol", 100, StatusActive),
	}

	pots := buildPots(players)
	if len(pots) != 2 {
		t.Fatalf("expected main pot plus one side pot, got %d", len(pots))
	}
	// Main pot: 50 from each of three players.
	if pots[0].Amount != 150 || len(pots[0].Eligible) != 3 {
		t.Errorf("main pot wrong: amount %d, eligible %d", pots[0].Amount, len(pots[0].Eligible))
	}
	// Side pot: the 50 overage from bob and carol, alice not eligible.
	if pots[1].Amount != 100 || len(pots[1].Eligible) != 2 {
		t.Errorf("side pot wrong: amount %d, eligible %d", pots[1].Amount, len(pots[1].Eligible))
	}
	for _, id := range pots[1].Eligible {
		if id == "alice" {
			t.Error("all-in player must not be eligible above their level")
		}
	}
}

func TestBuildPotsLayeredAllIns(t *testing.T) {
	players := []*Player{
		potPlayer("alice", 25, StatusAllIn),
		potPlayer("bob", 75, StatusAllIn),
		potPlayer("carol", 200, StatusActive),
		potPlayer("dave", 200, StatusActive),
	}

	pots := buildPots(players)
	if len(pots) != 3 {
		t.Fatalf("expected 3 pots, got %d", len(pots))
	}
	wantAmounts := []int64{100, 150, 250}
	wantEligible := []int{4, 3, 2}
	for i, pot := range pots {
		if pot.Amount != wantAmounts[i] {
			t.Errorf("pot %d amount: want %d, got %d", i, wantAmounts[i], pot.Amount)
		}
		if len(pot.Eligible) != wantEligible[i] {
			t.Errorf("pot %d eligible: want %d, got %d", i, wantEligible[i], len(pot.Eligible))
		}
	}
}

func TestBuildPotsFoldedChipsStayInPot(t *testing.T) {
	players := []*Player{
		potPlayer("alice", 100, StatusActive),
		potPlayer("bob", 100, StatusActive),
		potPlayer("carol", 40, StatusFolded),
	}

	pots := buildPots(players)
	if len(pots) != 1 {
		t.Fatalf("expected a single pot, got %d", len(pots))
	}
	if pots[0].Amount != 240 {
		t.Errorf("folded chips must remain in the pot: want 240, got %d", pots[0].Amount)
	}
	for _, id := range pots[0].Eligible {
		if id == "carol" {
			t.Error("folded player must not be eligible")
		}
	}
}

func TestBuildPotsOrphanLayerRollsDown(t *testing.T) {
	// bob called all-in for less, the overbettor folded to a re-raise that
	// never happened: everyone above the all-in level is out of the hand.
	players := []*Player{
		potPlayer("alice", 80, StatusFolded),
		potPlayer("bob", 50, StatusAllIn),
		potPlayer("carol", 50, StatusFolded),
	}

	pots := buildPots(players)
	if len(pots) != 1 {
		t.Fatalf("expected a single pot after rolldown, got %d", len(pots))
	}
	if pots[0].Amount != 180 {
		t.Errorf("orphaned layer must roll into the pot below: want 180, got %d", pots[0].Amount)
	}
	if len(pots[0].Eligible) != 1 || pots[0].Eligible[0] != "bob" {
		t.Errorf("only bob should be eligible, got %v", pots[0].Eligible)
	}
}

func TestBuildPotsTotalsMatchContributions(t *testing.T) {
	players := []*Player{
		potPlayer("alice", 13, StatusAllIn),
		potPlayer("bob", 77, StatusActive),
		potPlayer("carol", 77, StatusFolded),
		potPlayer("dave", 40, StatusAllIn),
	}

	var want int64
	for _, p := range players {
		want += p.Contributed
	}
	var got int64
	for _, pot := range buildPots(players) {
		got += pot.Amount
	}
	if got != want {
		t.Errorf("pot layering must conserve chips: want %d, got %d", want, got)
	}
}
