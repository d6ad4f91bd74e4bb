package library

import "github.com/vnmchuo/storyloom/internal/story"

// Default returns the built-in inventory. Production deployments replace
// this with editorially curated content; the shapes are identical.
func Default() *Library {
	return New(defaultTemplates(), defaultPrecomputed(), defaultClassics())
}

func defaultTemplates() []Template {
	return []Template{
		{
			ID:        "tpl-gentle-quest",
			Themes:    []string{"friendship", "courage", "kindness"},
			AgeGroups: []string{"3-5", "6-8"},
			Title:     "{hero} and the Big Day of {theme}",
			Pages: []story.Page{
				{Number: 1, Text: "{hero} woke up early. The sun was warm. Today felt special.", IllustrationPrompt: "{hero} stretching by a sunny window", InteractionPrompt: "What do you think will happen today?"},
				{Number: 2, Text: "Down the lane lived a small grey rabbit. The rabbit looked sad. {hero} stopped to ask why.", IllustrationPrompt: "a small grey rabbit by a hedge"},
				{Number: 3, Text: "The rabbit had lost its way home. {hero} wanted to help. They walked together.", InteractionPrompt: "Can you point which way they should go?"},
				{Number: 4, Text: "The path was long. {hero} was brave and kind. The rabbit smiled at last.", IllustrationPrompt: "{hero} and the rabbit on a winding path"},
				{Number: 5, Text: "They found the rabbit's burrow. Everyone cheered. {hero} learned what {theme} really means.", IllustrationPrompt: "a cozy burrow with lanterns", InteractionPrompt: "What would you have done?"},
			},
			Characters: []story.Character{
				{Name: "{hero}", Personality: "curious and warm", VisualDescription: "a child with bright eyes and a green jacket", Role: "protagonist"},
				{Name: "Grey Rabbit", Personality: "shy", VisualDescription: "a small grey rabbit with one floppy ear", Role: "friend"},
			},
		},
		{
			ID:        "tpl-night-sky",
			Themes:    []string{"curiosity", "patience"},
			AgeGroups: []string{"6-8", "9-11"},
			Title:     "{hero} and the Counting Stars",
			Pages: []story.Page{
				{Number: 1, Text: "{hero} loved the night sky because it never looked the same twice. Every evening brought new patterns.", InteractionPrompt: "How many stars can you count?"},
				{Number: 2, Text: "One night a star blinked three times, and {hero} decided to find out why."},
				{Number: 3, Text: "The answer took many nights of watching, but patience is how {theme} grows."},
			},
			Characters: []story.Character{
				{Name: "{hero}", Personality: "thoughtful", VisualDescription: "a child wrapped in a star-patterned blanket", Role: "protagonist"},
			},
		},
	}
}

func defaultPrecomputed() []Entry {
	return []Entry{
		{
			ID:        "pre-bridge",
			Themes:    []string{"friendship", "sharing"},
			AgeGroups: []string{"3-5", "6-8"},
			Story: story.Story{
				Title: "The Bridge of Two Villages",
				Theme: "friendship",
				Pages: []story.Page{
					{Number: 1, Text: "Two villages sat on two hills. A river ran between them. Nobody ever crossed."},
					{Number: 2, Text: "A girl named Pia waved across the water. A boy named Sam waved back.", InteractionPrompt: "Wave like Pia and Sam!"},
					{Number: 3, Text: "They each built half a bridge. The halves met in the middle. Now everyone crosses."},
				},
				Characters: []story.Character{
					{Name: "Pia", Personality: "determined", VisualDescription: "a girl with braided hair and red boots", Role: "protagonist"},
					{Name: "Sam", Personality: "cheerful", VisualDescription: "a boy with a yellow raincoat", Role: "friend"},
				},
			},
		},
		{
			ID:        "pre-garden",
			Themes:    []string{"patience", "kindness"},
			AgeGroups: []string{"6-8"},
			Story: story.Story{
				Title: "The Slowest Garden",
				Theme: "patience",
				Pages: []story.Page{
					{Number: 1, Text: "Nell planted a seed and watched it every day, but nothing seemed to happen at all."},
					{Number: 2, Text: "Weeks passed, and when Nell had almost forgotten, a green shoot appeared.", InteractionPrompt: "What do you think the seed will become?"},
					{Number: 3, Text: "Because Nell kept watering even when it was boring, the garden grew taller than the fence."},
				},
				Characters: []story.Character{
					{Name: "Nell", Personality: "patient", VisualDescription: "a child with a big straw hat and muddy gloves", Role: "protagonist"},
				},
			},
		},
	}
}

func defaultClassics() []Entry {
	return []Entry{
		{
			ID:        "classic-tortoise",
			Themes:    []string{"patience", "perseverance"},
			AgeGroups: []string{"3-5", "6-8", "9-11"},
			Story: story.Story{
				Title: "The Tortoise and the Hare",
				Theme: "perseverance",
				Pages: []story.Page{
					{Number: 1, Text: "A hare laughed at a slow tortoise. The tortoise offered a race. The hare agreed at once."},
					{Number: 2, Text: "The hare ran far ahead and stopped to nap under a shady tree.", InteractionPrompt: "Is napping during a race a good idea?"},
					{Number: 3, Text: "The tortoise kept walking, step after steady step, and crossed the line first."},
				},
				Characters: []story.Character{
					{Name: "Tortoise", Personality: "steady", VisualDescription: "an old tortoise with a mossy green shell", Role: "protagonist"},
					{Name: "Hare", Personality: "boastful", VisualDescription: "a lean brown hare with long ears", Role: "rival"},
				},
			},
		},
		{
			ID:        "classic-sun-wind",
			Themes:    []string{"kindness", "friendship"},
			AgeGroups: []string{"3-5", "6-8"},
			Story: story.Story{
				Title: "The Sun and the Wind",
				Theme: "kindness",
				Pages: []story.Page{
					{Number: 1, Text: "The wind and the sun argued about who was stronger. A traveler walked below in a warm coat."},
					{Number: 2, Text: "The wind blew hard, but the traveler only held the coat tighter."},
					{Number: 3, Text: "The sun shone gently, and the traveler took the coat off with a smile. Gentle wins.", InteractionPrompt: "When has being gentle worked for you?"},
				},
				Characters: []story.Character{
					{Name: "Sun", Personality: "gentle", VisualDescription: "a smiling golden sun", Role: "protagonist"},
					{Name: "Wind", Personality: "blustery", VisualDescription: "a grey swirling gust with puffed cheeks", Role: "rival"},
				},
			},
		},
	}
}
