/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import "sort"

// Standings is the final result of a game.
type Standings struct {
	Winners  []Player `json:"winners"`
	Ranking  []Player `json:"ranking"`
	MaxScore int      `json:"maxScore"`
	Draw     bool     `json:"draw"`
}

// ResolveWinners returns every player holding the top score, and the full
// roster sorted by score descending. Equal scores keep roster order.
func ResolveWinners(players []Player) Standings {
	if len(players) == 0 {
		return Standings{}
	}

	top := players[0].Score
	for _, p := range players[1:] {
		if p.Score > top {
			top = p.Score
		}
	}

	var winners []Player
	for _, p := range players {
		if p.Score == top {
			winners = append(winners, p)
		}
	}

	ranking := make([]Player, len(players))
	copy(ranking, players)
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})

	return Standings{
		Winners:  winners,
		Ranking:  ranking,
		MaxScore: top,
		Draw:     len(winners) > 1,
	}
}
