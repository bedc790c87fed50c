package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Validate(t *testing.T) {
	req := &Request{ID: "req-1", Description: "write a factorial function"}
	assert.NoError(t, req.Validate())

	missingID := &Request{Description: "write a factorial function"}
	assert.Error(t, missingID.Validate())

	missingDescription := &Request{ID: "req-1"}
	assert.Error(t, missingDescription.Validate())
}

func TestRequest_LanguageAndFramework(t *testing.T) {
	req := &Request{Constraints: map[string]string{"language": "python", "framework": "flask"}}
	assert.Equal(t, "python", req.Language())
	assert.Equal(t, "flask", req.Framework())

	bare := &Request{}
	assert.Empty(t, bare.Language())
	assert.Empty(t, bare.Framework())
}
