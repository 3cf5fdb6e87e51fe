// Humphrey is a voice bot: Speechmatics listens, OpenAI replies and
// Speechmatics speaks. Open http://localhost:7860/client/ once it is up.
package main

import (
	"github.com/teslashibe/go-humphrey/internal/examples"
	"github.com/teslashibe/go-humphrey/internal/runner"
)

func main() {
	runner.Main(&examples.Humphrey{})
}
