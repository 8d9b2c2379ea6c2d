package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/deck"
)

func TestScoreHandOrdersHandsCorrectly(t *testing.T) {
	t.Parallel()
	board := []deck.Card{
		card(deck.Two, deck.Clubs),
		card(deck.Seven, deck.Diamonds),
		card(deck.Nine, deck.Spades),
		card(deck.Jack, deck.Hearts),
		card(deck.Four, deck.Clubs),
	}

	aces, acesDesc, err := scoreHand([]deck.Card{
		card(deck.Ace, deck.Spades), card(deck.Ace, deck.Hearts),
	}, board)
	require.NoError(t, err)
	require.NotEmpty(t, acesDesc)

	kings, _, err := scoreHand([]deck.Card{
		card(deck.King, deck.Spades), card(deck.King, deck.Hearts),
	}, board)
	require.NoError(t, err)

	require.Greater(t, aces, kings, "pair of aces must outrank pair of kings")
}

func TestScoreHandFlushBeatsPair(t *testing.T) {
	t.Parallel()
	board := []deck.Card{
		card(deck.Two, deck.Hearts),
		card(deck.Seven, deck.Hearts),
		card(deck.Nine, deck.Hearts),
		card(deck.Jack, deck.Spades),
		card(deck.Four, deck.Clubs),
	}

	flush, _, err := scoreHand([]deck.Card{
		card(deck.Three, deck.Hearts), card(deck.Five, deck.Hearts),
	}, board)
	require.NoError(t, err)

	pair, _, err := scoreHand([]deck.Card{
		card(deck.Jack, deck.Clubs), card(deck.Ace, deck.Spades),
	}, board)
	require.NoError(t, err)

	require.Greater(t, flush, pair)
}

func TestScoreHandIdenticalHandsTie(t *testing.T) {
	t.Parallel()
	// Both holes play the board; the kickers differ only by suit.
	board := []deck.Card{
		card(deck.Ace, deck.Clubs),
		card(deck.Ace, deck.Diamonds),
		card(deck.King, deck.Spades),
		card(deck.King, deck.Hearts),
		card(deck.Queen, deck.Clubs),
	}

	a, _, err := scoreHand([]deck.Card{
		card(deck.Two, deck.Spades), card(deck.Three, deck.Hearts),
	}, board)
	require.NoError(t, err)

	b, _, err := scoreHand([]deck.Card{
		card(deck.Two, deck.Hearts), card(deck.Three, deck.Clubs),
	}, board)
	require.NoError(t, err)

	require.Equal(t, a, b, "suits must not break ties")
}

func TestScoreHandRejectsShortBoard(t *testing.T) {
	t.Parallel()
	_, _, err := scoreHand(
		[]deck.Card{card(deck.Ace, deck.Spades), card(deck.King, deck.Spades)},
		[]deck.Card{card(deck.Two, deck.Clubs)},
	)
	require.Error(t, err)
}

func TestEvalCardCoversWholeDeck(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for suit := deck.Spades; suit <= deck.Clubs; suit++ {
		for rank := deck.Two; rank <= deck.Ace; rank++ {
			pc, err := evalCard(deck.Card{Rank: rank, Suit: suit})
			require.NoError(t, err, "card %v of %v", rank, suit)
			key := pc.String()
			require.False(t, seen[key], "duplicate mapping for %v of %v", rank, suit)
			seen[key] = true
		}
	}
	require.Len(t, seen, 52)
}
