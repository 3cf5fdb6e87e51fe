// Humphrey with an ElevenLabs voice and speaker-tagged transcripts.
package main

import (
	"github.com/teslashibe/go-humphrey/internal/examples"
	"github.com/teslashibe/go-humphrey/internal/runner"
)

func main() {
	runner.Main(&examples.HumphreyElevenLabs{})
}
