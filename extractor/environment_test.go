package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

func TestEnvironmentPrelude(t *testing.T) {
	env := extractor.Environment{
		Domain: "example-site.dev",
		Elements: []extractor.Element{
			{ID: "cf-dn-a1", HTML: `+((+!![]+[]))`},
			{ID: "cf-dn-a2", HTML: `"quoted"`},
		},
	}
	p := env.Prelude()
	assert.Contains(t, p, `href: "https://example-site.dev/"`)
	assert.Contains(t, p, `{"cf-dn-a1":"+((+!![]+[]))","cf-dn-a2":"\"quoted\""}`)
	assert.Contains(t, p, `: "+((+!![]+[]))";`, "first element is the fallback")
	assert.Contains(t, p, "String.prototype.italics")
}

func TestEnvironmentPrelude_NoElements(t *testing.T) {
	p := extractor.Environment{Domain: "h"}.Prelude()
	assert.Contains(t, p, "var subVars = {};")
	assert.Contains(t, p, `: "";`)
}
