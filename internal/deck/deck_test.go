package deck

import (
	rand "math/rand/v2"
	"testing"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	t.Parallel()

	d := New(rand.New(rand.NewPCG(1, 2)))
	seen := make(map[Card]bool)
	for i := 0; i < 52; i++ {
		c, ok := d.Deal()
		if !ok {
			t.Fatalf("deck ran out after %d cards", i)
		}
		if seen[c] {
			t.Errorf("duplicate card %s", c)
		}
		seen[c] = true
	}

	if _, ok := d.Deal(); ok {
		t.Error("expected empty deck after 52 deals")
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	t.Parallel()

	d1 := New(rand.New(rand.NewPCG(42, 43)))
	d2 := New(rand.New(rand.NewPCG(42, 43)))

	for i := 0; i < 52; i++ {
		c1, _ := d1.Deal()
		c2, _ := d2.Deal()
		if c1 != c2 {
			t.Fatalf("card %d differs: %s vs %s", i, c1, c2)
		}
	}
}

func TestDealN(t *testing.T) {
	t.Parallel()

	d := New(rand.New(rand.NewPCG(7, 8)))
	hand := d.DealN(2)
	if len(hand) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(hand))
	}
	if d.Remaining() != 50 {
		t.Errorf("expected 50 remaining, got %d", d.Remaining())
	}

	// Asking for more cards than remain fails without partial deals
	if got := d.DealN(51); got != nil {
		t.Errorf("expected nil for oversized deal, got %d cards", len(got))
	}
	if d.Remaining() != 50 {
		t.Errorf("oversized deal consumed cards: %d remaining", d.Remaining())
	}
}

func TestResetRewindsDeck(t *testing.T) {
	t.Parallel()

	d := New(rand.New(rand.NewPCG(3, 4)))
	d.DealN(10)
	d.Reset()
	if d.Remaining() != 52 {
		t.Errorf("expected full deck after reset, got %d", d.Remaining())
	}
}

func TestBlackjackValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card Card
		want int
	}{
		{Card{Rank: Two, Suit: Spades}, 2},
		{Card{Rank: Nine, Suit: Hearts}, 9},
		{Card{Rank: Ten, Suit: Clubs}, 10},
		{Card{Rank: Jack, Suit: Diamonds}, 10},
		{Card{Rank: Queen, Suit: Spades}, 10},
		{Card{Rank: King, Suit: Hearts}, 10},
		{Card{Rank: Ace, Suit: Clubs}, 1},
	}

	for _, tt := range tests {
		if got := tt.card.BlackjackValue(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.card, tt.want, got)
		}
	}
}
