package tts

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
// Use ResolveElevenLabsVoice to look up a voice by name or pass through raw IDs.
var ElevenLabsVoices = map[string]string{
	"humphrey":  "97U3B7htAA7UsCIDST8b", // British male, dry
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
	"lily":      "pFZP5JQG7iQjIQuC4Bku", // British female, warm
	"george":    "JBFqnCBsd6RMkjVDRZzb", // British male, warm
	"daniel":    "onwK4e9ZLuTAKqWHc8cS", // British male, authoritative
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
}

// DefaultElevenLabsVoice is the default voice preset.
const DefaultElevenLabsVoice = "humphrey"

// ResolveElevenLabsVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}
