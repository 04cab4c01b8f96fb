package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

func TestFields_EncodeKeepsOrder(t *testing.T) {
	var f extractor.Fields
	f.Add("r", "a b")
	f.Add("jschl_vc", "1")
	f.Add("pass", "x&y")
	f.Set("jschl_answer", "0.5")
	assert.Equal(t, "r=a+b&jschl_vc=1&pass=x%26y&jschl_answer=0.5", f.Encode())
}

func TestFields_SetReplaces(t *testing.T) {
	f := extractor.Fields{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}
	f.Set("a", "3")
	assert.Equal(t, []string{"a", "b"}, f.Names())
	v, ok := f.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = f.Get("missing")
	assert.False(t, ok)
}

func TestFields_CloneIsIndependent(t *testing.T) {
	f := extractor.Fields{{Name: "a", Value: "1"}}
	c := f.Clone()
	c.Set("a", "2")
	c.Add("b", "3")
	v, _ := f.Get("a")
	assert.Equal(t, "1", v)
	assert.Len(t, f, 1)
	assert.Equal(t, []string{"2"}, c.Values()["a"])
}
