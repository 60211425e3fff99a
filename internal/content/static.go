package content

import (
	"context"
	"strings"
)

var (
	staticCategories = []string{
		"Something you find in a kitchen",
		"A famous scientist",
		"An animal that can swim",
		"A board game",
		"Something yellow",
		"A musical instrument",
		"A city in Europe",
		"A pizza topping",
	}
	staticRiddles = []RiddleResponse{
		{Category: "Animals", SecretWord: "Giraffe"},
		{Category: "Sports", SecretWord: "Tennis"},
		{Category: "Professions", SecretWord: "Firefighter"},
		{Category: "Desserts", SecretWord: "Pancake"},
		{Category: "Weather", SecretWord: "Thunder"},
	}
	staticTemplates = []string{
		"I secretly wish I was a [blank].",
		"The quick brown fox jumps over the lazy [blank].",
		"Never trust a [blank] with your [blank].",
		"My grandmother collects [blank] on weekends.",
		"The best way to start a Monday is with a [blank].",
	}
	staticWords = []string{
		"airport", "balloon", "cactus", "dinosaur", "elevator", "feather",
		"glacier", "hammock", "igloo", "jellyfish", "kangaroo", "lighthouse",
		"marathon", "necklace", "octopus", "parachute", "quicksand", "rainbow",
		"skeleton", "tornado", "umbrella", "vampire", "waterfall", "xylophone",
		"yacht", "zombie", "astronaut", "blizzard", "carousel", "detective",
	}
)

// Static serves built-in content and avoids repeats while it can. It is used
// when no generation service is configured.
type Static struct{}

var _ Generator = Static{}

func pick(list, previous []string) string {
	seen := make(map[string]struct{}, len(previous))
	for _, p := range previous {
		seen[strings.ToLower(p)] = struct{}{}
	}
	for _, s := range list {
		if _, ok := seen[strings.ToLower(s)]; !ok {
			return s
		}
	}
	return list[len(previous)%len(list)]
}

func (Static) Category(_ context.Context, req CategoryRequest) (CategoryResponse, error) {
	return CategoryResponse{Category: pick(staticCategories, req.PreviousCategories)}, nil
}

func (Static) Words(_ context.Context, req WordsRequest) (WordsResponse, error) {
	seen := make(map[string]struct{}, len(req.PreviousWords))
	for _, p := range req.PreviousWords {
		seen[p] = struct{}{}
	}

	words := make([]string, 0, req.Count)
	for _, w := range staticWords {
		if len(words) == req.Count {
			break
		}
		if _, ok := seen[w]; !ok {
			words = append(words, w)
		}
	}
	for i := 0; len(words) < req.Count; i++ {
		words = append(words, staticWords[i%len(staticWords)])
	}

	return WordsResponse{Words: words}, nil
}

func (Static) Riddle(_ context.Context, req RiddleRequest) (RiddleResponse, error) {
	seen := make(map[string]struct{}, len(req.PreviousWords))
	for _, p := range req.PreviousWords {
		seen[p] = struct{}{}
	}
	for _, r := range staticRiddles {
		if _, ok := seen[r.SecretWord]; !ok {
			return r, nil
		}
	}
	return staticRiddles[len(req.PreviousWords)%len(staticRiddles)], nil
}

func (Static) SentenceTemplate(_ context.Context, req SentenceRequest) (SentenceResponse, error) {
	return SentenceResponse{Template: pick(staticTemplates, req.PreviousTemplates)}, nil
}
