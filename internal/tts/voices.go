package tts

// Engine names selectable via configuration.
const (
	EngineElevenLabs = "elevenlabs"
	EngineDeepgram   = "deepgram"
)

// DefaultVoice per engine.
var DefaultVoice = map[string]string{
	EngineElevenLabs: "21m00Tcm4TlvDq8ikWAM", // Rachel
	EngineDeepgram:   "aura-2-thalia-en",
}

// Voices lists the known voice selections per engine. The UI offers these in
// its voice dropdown; selections outside the list are rejected.
var Voices = map[string][]string{
	EngineElevenLabs: {
		"21m00Tcm4TlvDq8ikWAM", // Rachel
		"29vD33N1CtxCmqQRPOHJ", // Drew
		"2EiwWnXFnvU5JabPnv8n", // Clyde
		"5Q0t7uMcjvnagumLfvZi", // Paul
		"AZnzlk1XvdvUeBnXmlld", // Domi
	},
	EngineDeepgram: {
		"aura-2-thalia-en",
		"aura-2-andromeda-en",
		"aura-2-helena-en",
		"aura-2-orion-en",
		"aura-2-arcas-en",
	},
}

// ValidVoice reports whether voice is a known selection for the engine.
func ValidVoice(engine, voice string) bool {
	for _, v := range Voices[engine] {
		if v == voice {
			return true
		}
	}
	return false
}
