package telegram

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// markdown renders the formatting entities of a message back into Markdown.
// Entity offsets and lengths count UTF-16 code units.
func markdown(text string, entities []tgbotapi.MessageEntity) string {
	if len(entities) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))
	sorted := slices.Clone(entities)
	slices.SortStableFunc(sorted, func(a, b tgbotapi.MessageEntity) int {
		if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
			return c
		}
		return cmp.Compare(b.Length, a.Length)
	})

	opens := make(map[int][]string)
	closes := make(map[int][]string)
	for _, e := range sorted {
		openTag, closeTag, ok := delimiters(e)
		end := e.Offset + e.Length
		if !ok || e.Offset < 0 || e.Length <= 0 || end > len(units) {
			continue
		}
		opens[e.Offset] = append(opens[e.Offset], openTag)
		// inner entities close before the ones enclosing them
		closes[end] = append([]string{closeTag}, closes[end]...)
	}

	var b strings.Builder
	last := 0
	for pos := 0; pos <= len(units); pos++ {
		c, o := closes[pos], opens[pos]
		if len(c) == 0 && len(o) == 0 {
			continue
		}
		b.WriteString(string(utf16.Decode(units[last:pos])))
		last = pos
		for _, s := range c {
			b.WriteString(s)
		}
		for _, s := range o {
			b.WriteString(s)
		}
	}
	b.WriteString(string(utf16.Decode(units[last:])))
	return b.String()
}

func delimiters(e tgbotapi.MessageEntity) (openTag, closeTag string, ok bool) {
	switch e.Type {
	case "bold":
		return "**", "**", true
	case "italic":
		return "__", "__", true
	case "strikethrough":
		return "~~", "~~", true
	case "code":
		return "`", "`", true
	case "pre":
		if e.Language != "" {
			return "```" + e.Language + "\n", "\n```", true
		}
		return "```", "```", true
	case "text_link":
		return "[", "](" + e.URL + ")", true
	}
	return "", "", false
}
