package game

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulhankin/poker"

	"github.com/aceystream/cardtable/internal/deck"
)

// evalCard converts one of our cards into the evaluator's representation,
// which counts aces as 1 and orders suits club, diamond, heart, spade.
func evalCard(c deck.Card) (poker.Card, error) {
	rank := poker.Rank(c.Rank)
	if c.Rank == deck.Ace {
		rank = 1
	}
	var suit poker.Suit
	switch c.Suit {
	case deck.Clubs:
		suit = poker.Club
	case deck.Diamonds:
		suit = poker.Diamond
	case deck.Hearts:
		suit = poker.Heart
	case deck.Spades:
		suit = poker.Spade
	}
	return poker.MakeCard(suit, rank)
}

// scoreHand evaluates a player's best five-card hand out of their hole cards
// and the board.
func scoreHand(hole, board []deck.Card) (int16, string, error) {
	if len(hole) != 2 || len(board) != 5 {
		return 0, "", fmt.Errorf("showdown needs 2 hole cards and 5 board cards, have %d and %d",
			len(hole), len(board))
	}
	var final [7]poker.Card
	for i, c := range board {
		pc, err := evalCard(c)
		if err != nil {
			return 0, "", fmt.Errorf("bad board card %s: %w", c, err)
		}
		final[i] = pc
	}
	for i, c := range hole {
		pc, err := evalCard(c)
		if err != nil {
			return 0, "", fmt.Errorf("bad hole card %s: %w", c, err)
		}
		final[5+i] = pc
	}
	desc, err := poker.Describe(final[:])
	if err != nil {
		return 0, "", err
	}
	return poker.Eval7(&final), desc, nil
}

// pokerShowdown evaluates every pot layer, splits ties evenly with odd chips
// going to the earliest eligible winner, and settles the round.
func (m *Machine) pokerShowdown(ctx context.Context, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	pots := buildPots(s.Players)

	type scored struct {
		userID string
		score  int16
		desc   string
	}
	scores := make(map[string]scored)
	for _, p := range s.Players {
		if !p.InRound() || len(p.Hands) == 0 {
			continue
		}
		score, desc, err := scoreHand(p.Hands[0].Cards, s.CommunityCards)
		if err != nil {
			return err
		}
		scores[p.UserID] = scored{userID: p.UserID, score: score, desc: desc}
	}

	credits := make(map[string]int64)
	for _, pot := range pots {
		contenders := make([]scored, 0, len(pot.Eligible))
		for _, userID := range pot.Eligible {
			if sc, ok := scores[userID]; ok {
				contenders = append(contenders, sc)
			}
		}
		if len(contenders) == 0 {
			continue
		}
		sort.Slice(contenders, func(i, j int) bool {
			return contenders[i].score > contenders[j].score
		})

		winners := []scored{contenders[0]}
		for _, sc := range contenders[1:] {
			if sc.score != contenders[0].score {
				break
			}
			winners = append(winners, sc)
		}

		share := pot.Amount / int64(len(winners))
		remainder := pot.Amount % int64(len(winners))
		for i, w := range winners {
			amount := share
			if int64(i) < remainder {
				amount++
			}
			credits[w.userID] += amount
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s wins %d with %s", w.userID, amount, w.desc))
		}
	}

	res.RoundComplete = true
	return m.finishRound(ctx, credits, res)
}
