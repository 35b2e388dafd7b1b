package speech

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)
var junkPattern = regexp.MustCompile(`[^\w\s.,?!-]`)
var spacePattern = regexp.MustCompile(`\s+`)

var symbolWords = strings.NewReplacer(
	"+", " plus ",
	"=", " equals ",
	"*", " times ",
	"/", " divided by ",
	"<", " less than ",
	">", " greater than ",
	"@", " at ",
	"#", " hashtag ",
	"$", " dollar ",
	"%", " percent ",
	"&", " and ",
	"|", " or ",
	"_", " underscore ",
)

// CleanForSpeech filters reply text for the synthesizer: URLs are elided,
// technical symbols are spoken out, everything else unpronounceable is
// dropped and whitespace is folded.
func CleanForSpeech(text string) string {
	text = urlPattern.ReplaceAllString(text, " URL omitted ")
	text = symbolWords.Replace(text)
	text = junkPattern.ReplaceAllString(text, " ")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
