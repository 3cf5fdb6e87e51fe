// Humphrey speaking through Google Cloud Text-to-Speech.
package main

import (
	"github.com/teslashibe/go-humphrey/internal/examples"
	"github.com/teslashibe/go-humphrey/internal/runner"
)

func main() {
	runner.Main(&examples.HumphreyGoogle{})
}
