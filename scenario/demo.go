package scenario

import (
	_ "embed"
)

//go:embed demo.yaml
var demoYAML []byte

// Demo returns the built-in scenario: an application scope and a request
// scope, with a transfer, a remove/adopt round trip, a failing constructor
// and a failing release.
func Demo() *Document {
	doc, err := Parse(demoYAML)
	if err != nil {
		panic("scenario: invalid built-in demo: " + err.Error())
	}
	return doc
}
