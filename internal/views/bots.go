package views

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed bots.yml
var botsYAML []byte

// BotEntry is one known crawler pattern.
type BotEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type botMatcher struct {
	entry BotEntry
	regex *pcre.Regexp
}

var (
	botMatchers []botMatcher
	botsOnce    sync.Once
)

func loadBotMatchers() {
	botsOnce.Do(func() {
		var entries []BotEntry
		if err := yaml.Unmarshal(botsYAML, &entries); err != nil {
			slog.Default().Error("Failed to parse bots.yml", slog.Any("error", err))
			return
		}

		for _, entry := range entries {
			regex, err := pcre.Compile("(?i)" + entry.Regex)
			if err != nil {
				slog.Default().Error("Skipping invalid bot pattern",
					slog.String("pattern", entry.Regex),
					slog.Any("error", err))
				continue
			}
			botMatchers = append(botMatchers, botMatcher{entry: entry, regex: regex})
		}
	})
}

// DetectBot returns the first known crawler matching userAgent.
func DetectBot(userAgent string) (*BotEntry, bool) {
	loadBotMatchers()
	for i := range botMatchers {
		if botMatchers[i].regex.MatchString(userAgent) {
			return &botMatchers[i].entry, true
		}
	}
	return nil, false
}

// IsBot reports whether userAgent belongs to a known crawler.
func IsBot(userAgent string) bool {
	_, ok := DetectBot(userAgent)
	return ok
}

// BotPatternCount returns the number of compiled patterns, for diagnostics.
func BotPatternCount() int {
	loadBotMatchers()
	return len(botMatchers)
}

func (e BotEntry) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.Regex)
}
