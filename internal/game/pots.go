package game

import "sort"

// Pot is one layer of the poker pot. Every pot past the first is a side pot
// created by an all-in.
type Pot struct {
	Amount   int64
	Eligible []string // user ids that can win this pot
}

// buildPots splits the collected chips into main and side pots layered at
// each distinct all-in contribution level. Folded players' chips stay in the
// layers they were contributed to, but folded players are never eligible.
func buildPots(players []*Player) []Pot {
	levels := make(map[int64]bool)
	for _, p := range players {
		if p.Status == StatusAllIn && p.Contributed > 0 {
			levels[p.Contributed] = true
		}
	}

	if len(levels) == 0 {
		pot := Pot{}
		for _, p := range players {
			pot.Amount += p.Contributed
			if p.InRound() && len(p.Hands) > 0 {
				pot.Eligible = append(pot.Eligible, p.UserID)
			}
		}
		if pot.Amount == 0 {
			return nil
		}
		return []Pot{pot}
	}

	caps := make([]int64, 0, len(levels)+1)
	for level := range levels {
		caps = append(caps, level)
	}
	var top int64
	for _, p := range players {
		if p.Contributed > top {
			top = p.Contributed
		}
	}
	if !levels[top] {
		caps = append(caps, top)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })

	var pots []Pot
	prev := int64(0)
	for _, level := range caps {
		pot := Pot{}
		for _, p := range players {
			chunk := p.Contributed - prev
			if chunk > level-prev {
				chunk = level - prev
			}
			if chunk > 0 {
				pot.Amount += chunk
			}
			if p.InRound() && len(p.Hands) > 0 && p.Contributed > prev {
				pot.Eligible = append(pot.Eligible, p.UserID)
			}
		}
		if pot.Amount > 0 {
			if len(pot.Eligible) == 0 && len(pots) > 0 {
				// Everyone who covered this layer folded; the chips
				// roll into the pot below.
				pots[len(pots)-1].Amount += pot.Amount
			} else if len(pot.Eligible) > 0 {
				pots = append(pots, pot)
			}
		}
		prev = level
	}
	return pots
}
