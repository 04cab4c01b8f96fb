package extractor_test

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/extractor"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "testdata", name))
	require.NoError(t, err)
	return b
}

func pageURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractIUAM(t *testing.T) {
	got, err := extractor.ExtractIUAM(fixture(t, "iuam_v1.html"), pageURL(t, "https://example-site.dev/articles?id=7"))
	require.NoError(t, err)

	assert.Equal(t, "https://example-site.dev/cdn-cgi/l/chk_jschl?__cf_chl_jschl_tk__=4a1c9f0b8e2d7a63c5b04e91f2d8a7c6e3b1d0f9-1554900000-0-AbCdEfGh&ref=home", got.Form.Action)
	assert.Equal(t, "POST", got.Form.Method)

	want := extractor.Fields{
		{Name: "r", Value: "9e4b2c1d8f7a6e5d4c3b2a1908f7e6d5c4b3a291-1554900000-0-AQ7kLmN0pQrStUvWxYz"},
		{Name: "jschl_vc", Value: "8c0d1b6fb3c42a9e0d6e2c1cb8a9f111"},
		{Name: "pass", Value: "1554900004.123-AbCdEfGhIj"},
	}
	if diff := cmp.Diff(want, got.Form.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, got.Script, `xBnqWpo={"hJkRt":`)
	assert.Contains(t, got.Script, "a.value = (+xBnqWpo.hJkRt).toFixed(10);")
	assert.NotContains(t, got.Script, "f.submit()")

	assert.Equal(t, "example-site.dev", got.Env.Domain)
	require.Len(t, got.Form.KTable, 3)
	assert.Equal(t, "+((+!![]+[])+(+[]))", got.Form.KTable[23])
	assert.Equal(t, got.Form.KTable, got.Env.KTable)
}

func TestExtractIUAM_NoRField(t *testing.T) {
	got, err := extractor.ExtractIUAM(fixture(t, "iuam_v1_parseint.html"), pageURL(t, "http://example-site.dev/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"jschl_vc", "pass"}, got.Form.Fields.Names())
	assert.Equal(t, "GET", got.Form.Method)
	assert.Nil(t, got.Form.KTable)
	assert.Contains(t, got.Script, "parseInt(jWqLmp.vHn, 10) + t.length;")
}

func TestExtractIUAM_Failures(t *testing.T) {
	u := pageURL(t, "https://example-site.dev/")
	tests := map[string]string{
		"no form":   `<html><body>setTimeout(function(){ a.value = 1;</body></html>`,
		"no script": `<form id="challenge-form" action="/x?__cf_chl_jschl_tk__=1"><input name="jschl_vc" value="a"/><input name="pass" value="b"/></form>`,
		"no pass":   `<form id="challenge-form" action="/x?__cf_chl_jschl_tk__=1"><input name="jschl_vc" value="a"/></form>` + "setTimeout(function(){\n a.value = 1;",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := extractor.ExtractIUAM([]byte(body), u)
			require.Error(t, err)
			assert.ErrorIs(t, err, challenge.ErrExtraction)
			var ce *challenge.Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, challenge.IuamV1, ce.Kind)
			assert.NotEmpty(t, ce.Step)
		})
	}
}

func TestExtractDelay(t *testing.T) {
	d, err := extractor.ExtractDelay(fixture(t, "iuam_v1.html"))
	require.NoError(t, err)
	assert.Equal(t, 4.0, d)

	d, err = extractor.ExtractDelay(fixture(t, "iuam_v1_parseint.html"))
	require.NoError(t, err)
	assert.Equal(t, 5.85, d)

	_, err = extractor.ExtractDelay([]byte("<html></html>"))
	assert.ErrorIs(t, err, challenge.ErrExtraction)
}

func TestExtractCaptcha(t *testing.T) {
	got, err := extractor.ExtractCaptcha(fixture(t, "captcha_v1.html"), pageURL(t, "https://example-site.dev/account/login"))
	require.NoError(t, err)

	assert.Equal(t, extractor.CaptchaTypeHCaptcha, got.Type)
	assert.Equal(t, "33f96e6a-38cd-421b-bb68-7806e1764460", got.SiteKey)
	assert.Equal(t, "5637a1b2c3d4e5f6", got.RayID)
	assert.Equal(t, "https://example-site.dev/account/login?__cf_chl_captcha_tk__=7d1e0c9f3b2a4e5d6c7b8a9f0e1d2c3b4a5f6e7d-1581526800-0-AeZ1xY2wV3uT4sR5qP6&lang=en", got.Form.Action)
	assert.Equal(t, []string{"r", "cf_captcha_kind"}, got.Form.Fields.Names())
	v, _ := got.Form.Fields.Get("cf_captcha_kind")
	assert.Equal(t, "h", v)
}

func TestExtractCaptcha_ReCaptcha(t *testing.T) {
	body := `<form id="challenge-form" action="/?__cf_chl_captcha_tk__=abc" method="POST">
<input type="hidden" name="r" value=""/>
<input type="hidden" name="cf_captcha_kind" value="re"/>
<div class="g-recaptcha" data-sitekey="6LfBixYUAAAAABhdHynFUIMA_sa4s-XsJvnjtgB0"></div>
</form>`
	got, err := extractor.ExtractCaptcha([]byte(body), pageURL(t, "https://example-site.dev/"))
	require.NoError(t, err)
	assert.Equal(t, extractor.CaptchaTypeReCaptcha, got.Type)
	assert.Equal(t, "", got.RayID)
	r, ok := got.Form.Fields.Get("r")
	assert.True(t, ok)
	assert.Empty(t, r)
}

func TestExtractCaptcha_MissingSiteKey(t *testing.T) {
	body := `<form id="challenge-form" action="/?__cf_chl_captcha_tk__=abc"><input name="cf_captcha_kind" value="h"/></form>`
	_, err := extractor.ExtractCaptcha([]byte(body), pageURL(t, "https://example-site.dev/"))
	assert.ErrorIs(t, err, challenge.ErrExtraction)
}

func TestExtractTurnstile(t *testing.T) {
	got, err := extractor.ExtractTurnstile(fixture(t, "turnstile.html"), pageURL(t, "https://example-site.dev/login?x=1"))
	require.NoError(t, err)
	assert.Equal(t, "0x4AAAAAAAB3kQzT7mPxWc2LnR9vYdHs5JfGu8Ke", got.SiteKey)
	assert.Equal(t, "https://example-site.dev/verify?next=%2Fdashboard", got.Form.Action)
	assert.Equal(t, []string{"md", "cf-turnstile-response", "ref"}, got.Form.Fields.Names())
}

func TestExtractTurnstile_DefaultAction(t *testing.T) {
	body := `<div class="cf-turnstile" data-sitekey="0x4AAAAAAAB3kQzT7mPxWc2LnR9vYdHs5JfGu8Ke"></div>`
	got, err := extractor.ExtractTurnstile([]byte(body), pageURL(t, "https://example-site.dev/login?x=1"))
	require.NoError(t, err)
	assert.Equal(t, "https://example-site.dev/login", got.Form.Action)
	assert.Equal(t, "POST", got.Form.Method)
	assert.Empty(t, got.Form.Fields)
}

func TestExtractElements_Order(t *testing.T) {
	els := extractor.ExtractElements(fixture(t, "iuam_v1.html"))
	ids := make([]string, len(els))
	for i, el := range els {
		ids[i] = el.ID
	}
	assert.Equal(t, []string{"cf-dn-Xyz21", "cf-dn-Xyz22", "cf-dn-Xyz23"}, ids)
}
