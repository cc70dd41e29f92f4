package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExtractor() *Extractor {
	e := NewExtractor(zap.NewNop())
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func TestExtract_CanonicalPaths(t *testing.T) {
	e := newTestExtractor()

	body := `{"context":{"client":{"visitorData":"V1"}},"serviceIntegrityDimensions":{"poToken":"T1"}}`
	cred, err := e.Extract(body)
	require.NoError(t, err)

	assert.Equal(t, "T1", cred.PoToken)
	assert.Equal(t, "V1", cred.VisitorData)
	assert.Equal(t, int64(1700000000), cred.Updated)
}

func TestExtract_EmptyBody(t *testing.T) {
	e := newTestExtractor()

	_, err := e.Extract("")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestExtract_MalformedJSON(t *testing.T) {
	e := newTestExtractor()

	_, err := e.Extract("not json")
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestExtract_FieldsMissing(t *testing.T) {
	e := newTestExtractor()

	_, err := e.Extract(`{}`)
	assert.ErrorIs(t, err, ErrFieldsMissing)

	// A token-shaped key with a non-string value does not count.
	_, err = e.Extract(`{"context":{"client":{"visitorData":"V1"}},"attestation":{"poToken":42}}`)
	assert.ErrorIs(t, err, ErrFieldsMissing)
}

func TestExtract_RecursiveTokenFallback(t *testing.T) {
	e := newTestExtractor()

	// poToken hidden under an unexpected path, with a case variation.
	body := `{
		"context":{"client":{"visitorData":"V1"}},
		"playbackContext":{"attestation":{"potoken":"T-deep"}}
	}`
	cred, err := e.Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "T-deep", cred.PoToken)
	assert.Equal(t, "V1", cred.VisitorData)
}

func TestExtract_RecursiveVisitorFallback(t *testing.T) {
	e := newTestExtractor()

	// visitorData is matched case sensitively; "visitordata" must not count.
	body := `{
		"serviceIntegrityDimensions":{"poToken":"T1"},
		"misc":{"visitordata":"wrong"},
		"session":[{"visitorData":"V-deep"}]
	}`
	cred, err := e.Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "V-deep", cred.VisitorData)
}

func TestExtract_RecursiveSearchIsDeterministic(t *testing.T) {
	e := newTestExtractor()

	// Two candidate keys at the same depth: the traversal visits object
	// keys in sorted order, so "alpha" wins over "beta" on every run.
	body := `{
		"context":{"client":{"visitorData":"V1"}},
		"alpha":{"poToken":"T-alpha"},
		"beta":{"poToken":"T-beta"}
	}`
	for i := 0; i < 20; i++ {
		cred, err := e.Extract(body)
		require.NoError(t, err)
		assert.Equal(t, "T-alpha", cred.PoToken)
	}
}

func TestExtract_ErrorCarriesNoPayload(t *testing.T) {
	e := newTestExtractor()

	_, err := e.Extract(`{"secretValue":"do-not-leak"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFieldsMissing))
	assert.NotContains(t, err.Error(), "do-not-leak")
}

func TestCredential_JSON(t *testing.T) {
	cred := Credential{Updated: 1700000000, PoToken: "T1", VisitorData: "V1"}
	assert.JSONEq(t, `{"updated":1700000000,"potoken":"T1","visitor_data":"V1"}`, cred.JSON())
}
