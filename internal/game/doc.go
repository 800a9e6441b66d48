// Package game implements a single round of blackjack between one player and
// the house.
//
// The main type is Round, which owns the deck, both hands and the escrowed
// bet. A round moves through three phases:
//
//	AwaitingPlayerAction -> Resolving -> Complete
//
// Complete is terminal. Settlement happens exactly once, on the transition
// into Complete, and is available from Round.Settlement afterwards.
//
// # Basic Usage
//
//	r, err := game.Start(game.StartParams{
//	    ID:      id,
//	    UserID:  "alice",
//	    Bet:     100,
//	    Balance: 1000,
//	}, game.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	if err := r.Stand(); err != nil {
//	    return err
//	}
//	s, _ := r.Settlement()
//
// # Deterministic Testing
//
// Pass a pre-ordered deck to replay a known deal:
//
//	d := deck.NewOrderedDeck(deck.MustParseCards("TsKh9d8c")...)
//	r, _ := game.Start(game.StartParams{Bet: 10, Balance: 10, Deck: d}, cfg)
//
// Cards are dealt two to the player, then two to the dealer.
package game
