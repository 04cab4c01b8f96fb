package extractor

import (
	"encoding/json"
	"strings"
)

// Element is a page element the challenge script may read through
// document.getElementById.
type Element struct {
	ID   string
	HTML string
}

// Environment is the minimal execution context of a challenge script: the
// host it believes it runs on and the element texts its fake document
// returns.
type Environment struct {
	// Domain is the host (with port, if any) of the challenge page.
	Domain string

	// Elements are the id/innerHTML pairs in page order.
	Elements []Element

	// KTable is the indirection table keyed by the numeric id suffix.
	KTable map[int]string
}

// Prelude renders JavaScript that defines the synthetic document and the
// String.prototype.italics shim.  Script engine backends run it before the
// challenge script; the native evaluator never needs it.
func (e Environment) Prelude() string {
	href, _ := json.Marshal("https://" + e.Domain + "/")

	var fallback = []byte(`""`)
	var vars strings.Builder
	vars.WriteByte('{')
	for i, el := range e.Elements {
		id, _ := json.Marshal(el.ID)
		html, _ := json.Marshal(el.HTML)
		if i == 0 {
			fallback = html
		} else {
			vars.WriteByte(',')
		}
		vars.Write(id)
		vars.WriteByte(':')
		vars.Write(html)
	}
	vars.WriteByte('}')

	var b strings.Builder
	b.WriteString(`String.prototype.italics=function(str) {return "<i>" + this + "</i>";};` + "\n")
	b.WriteString("var subVars = " + vars.String() + ";\n")
	b.WriteString("var document = {\n")
	b.WriteString("  createElement: function () {\n")
	b.WriteString("    return { firstChild: { href: " + string(href) + " } };\n")
	b.WriteString("  },\n")
	b.WriteString("  getElementById: function (id) {\n")
	b.WriteString("    var html = Object.prototype.hasOwnProperty.call(subVars, id) ? subVars[id] : " + string(fallback) + ";\n")
	b.WriteString("    return { innerHTML: html };\n")
	b.WriteString("  }\n")
	b.WriteString("};\n")
	return b.String()
}
