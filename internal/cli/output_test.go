package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/engine"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"applied": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(string(engine.ErrCodeInvalidLink), "cannot create link", map[string]int{"child": 2}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_LINK", resp.Error.Code)
	assert.Equal(t, "cannot create link", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("LINK_NOT_FOUND", "link does not exist", map[string]int{"link": 9}))
			assert.Contains(t, buf.String(), "Error [LINK_NOT_FOUND]: link does not exist")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_Result(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Result(map[string]int{"n": 1}, "one link\n"))
	assert.Equal(t, "one link\n", buf.String())

	buf.Reset()
	formatter.Format = "json"
	require.NoError(t, formatter.Result(map[string]int{"n": 1}, "one link\n"))
	assert.Contains(t, buf.String(), `"n":1`)
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := &engine.RuntimeError{Code: engine.ErrCodeDuplicateLink, Message: "courses are already linked"}
	err := formatter.Fail("link add failed", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, cause))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "DUPLICATE_LINK", resp.Error.Code)
}

func TestOutputFormatter_FailPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	_ = formatter.Fail("state failed", errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "Error [ERROR]: disk I/O error")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("reconciling %s", "link:3")
	assert.Empty(t, out.String())
	assert.Equal(t, "reconciling link:3\n", diag.String())

	diag.Reset()
	formatter.Verbose = false
	formatter.VerboseLog("reconciling %s", "link:3")
	assert.Empty(t, diag.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "bad: inner", WrapExitError(ExitFailure, "bad", errors.New("inner")).Error())
}
