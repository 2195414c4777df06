package web

import "math/rand"

// selectionOptions are the narrative axes fixed once at adventure creation.
// Picking them up front keeps every later prompt for the same adventure
// pulling in the same direction.
var selectionOptions = map[string][]string{
	"setting": {
		"a bustling port city",
		"a forest that remembers every visitor",
		"a mountain monastery above the clouds",
		"an archipelago of drifting sky islands",
		"a frontier town at the edge of the map",
	},
	"tone": {
		"warm and hopeful",
		"mysterious and hushed",
		"bold and adventurous",
		"playful with moments of wonder",
	},
	"theme": {
		"curiosity opens doors",
		"small acts of kindness ripple outward",
		"courage is doing it scared",
		"every stranger has a story",
	},
	"moral": {
		"honesty costs less than it seems",
		"asking for help is a strength",
		"patience finishes what haste ruins",
		"listening first changes everything",
	},
	"twist": {
		"an ally is not who they claim to be",
		"the goal turns out to be a beginning",
		"the obstacle was a guardian all along",
		"a small forgotten detail becomes the key",
	},
}

func pickSelections(rng *rand.Rand) map[string]string {
	picked := make(map[string]string, len(selectionOptions))
	for axis, options := range selectionOptions {
		picked[axis] = options[rng.Intn(len(options))]
	}
	return picked
}
