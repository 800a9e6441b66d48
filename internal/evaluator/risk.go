package evaluator

// nextCardValues are the distinct values the next card can add: 2 through 10
// (faces fold into 10) and an ace counted as 11.
var nextCardValues = [...]int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

// BustRisk estimates the chance that one more card busts the hand, as the
// fraction of next-card values that take the total over 21. Card frequencies
// are ignored; every value is weighted equally.
func (h Hand) BustRisk() float64 {
	total := h.Score()
	if total+nextCardValues[0] > Blackjack {
		return 1.0
	}

	risky := 0
	for _, v := range nextCardValues {
		if total+v > Blackjack {
			risky++
		}
	}
	return float64(risky) / float64(len(nextCardValues))
}
