package apierror_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/apierror"
)

func TestKindStatus(t *testing.T) {
	cases := map[apierror.Kind]int{
		apierror.KindInvalidFilterSyntax: 400,
		apierror.KindFieldNotFound:       400,
		apierror.KindUnsupportedLookup:   400,
		apierror.KindAccessDenied:        403,
		apierror.KindNotFound:            404,
		apierror.KindPreconditionFailed:  412,
		apierror.KindNotAcceptable:       406,
		apierror.KindUpstream:            502,
		apierror.KindTimeout:             504,
		apierror.KindUnavailable:         503,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), kind)
	}
}

func TestErrorWithInvalidParam(t *testing.T) {
	err := apierror.New(apierror.KindInvalidValue, "bad date").
		WithInvalidParam("value", "dateAdded", "Enter a valid ISO date-time, or single date.")

	pj := err.ToProblemJSON()
	require.Len(t, pj.InvalidParams, 1)
	assert.Equal(t, "dateAdded", pj.InvalidParams[0].Name)
	assert.Equal(t, "urn:apiexception:invalid_value", pj.Type)
	assert.Equal(t, 400, pj.Status)
}

func TestURNSnakeCase(t *testing.T) {
	err := apierror.New(apierror.KindUnsupportedLookup, "")
	assert.Equal(t, "urn:apiexception:unsupported_lookup", err.URN())
}
