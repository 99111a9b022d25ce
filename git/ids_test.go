package git_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/git"
)

func TestNormalizeID(t *testing.T) {
	id := "DEADBEEFdeadbeefDEADBEEFdeadbeefDEADBEEF"
	assert.Equal(t, strings.ToLower(id), git.NormalizeID("  "+id+"\n"))
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "lowercase", id: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"},
		{name: "uppercase", id: "DEADBEEFDEADBEEFDEADBEEFDEADBEEFDEADBEEF"},
		{name: "zero", id: git.ZeroID},
		{name: "empty", id: "", wantErr: true},
		{name: "short", id: "deadbeef", wantErr: true},
		{name: "too long", id: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef00", wantErr: true},
		{name: "not hex", id: "zzzzbeefdeadbeefdeadbeefdeadbeefdeadbeef", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := git.ValidateID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateHexID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "full", id: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"},
		{name: "abbreviated", id: "deadbeef"},
		{name: "mixed case", id: "DeadBeef"},
		{name: "empty", id: "", wantErr: true},
		{name: "not hex", id: "deadbeeg", wantErr: true},
		{name: "path", id: "../objects", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := git.ValidateHexID(tt.id)
			if tt.wantErr {
				assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIsZeroID(t *testing.T) {
	assert.True(t, git.IsZeroID(git.ZeroID))
	assert.True(t, git.IsZeroID("0000"))
	assert.False(t, git.IsZeroID(""))
	assert.False(t, git.IsZeroID("0000000000000000000000000000000000000001"))
}
