package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortsKeysAndDropsWhitespace(t *testing.T) {
	out, err := CanonicalJSON([]byte(`{ "zebra": 1, "alpha": {"b": 2, "a": [1, 2.50, "x"]} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":[1,2.50,"x"],"b":2},"zebra":1}`, string(out))
}

func TestCanonicalJSON_NoHTMLEscape(t *testing.T) {
	out, err := CanonicalJSON([]byte(`{"t":"<b>&</b>"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"t":"<b>&</b>"}`, string(out))
}

func TestCanonicalJSON_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	out, err := CanonicalJSON([]byte("{\"t\":\"e\u0301\"}"))
	require.NoError(t, err)
	assert.Equal(t, "{\"t\":\"\u00e9\"}", string(out))
}

func TestCanonicalJSON_Invalid(t *testing.T) {
	_, err := CanonicalJSON([]byte(`{"t":`))
	assert.Error(t, err)
}

func TestPayloadDigest_KeyOrderInsensitive(t *testing.T) {
	a, err := PayloadDigest(FormatJSON, `{"DOI":"10.1/x","title":["A"]}`)
	require.NoError(t, err)
	b, err := PayloadDigest(FormatJSON, `{"title": ["A"], "DOI": "10.1/x"}`)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := PayloadDigest(FormatJSON, `{"title": ["B"], "DOI": "10.1/x"}`)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestPayloadDigest_XMLTrimmed(t *testing.T) {
	a, err := PayloadDigest(FormatXML, "<entry/>\n")
	require.NoError(t, err)
	b, err := PayloadDigest(FormatXML, "<entry/>")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestPayloadDigest_FormatsAreSeparated(t *testing.T) {
	a, err := PayloadDigest(FormatXML, `"x"`)
	require.NoError(t, err)
	b, err := PayloadDigest(FormatJSON, `"x"`)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPayloadDigest_UnknownFormat(t *testing.T) {
	_, err := PayloadDigest(Format("CSV"), "a,b")
	assert.Error(t, err)
}
