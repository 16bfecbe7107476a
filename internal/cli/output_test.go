package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/picking"
	"github.com/roach88/odoorpc/internal/rpc"
	"github.com/roach88/odoorpc/internal/value"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(value.Object{"id": value.Int(7)}))

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 7, resp.Data["id"])
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeNotFound, "stock.move record 3 not found", map[string]string{"model": "stock.move"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E103", resp.Error.Code)
	assert.Equal(t, "stock.move record 3 not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextValue(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(value.Object{"name": value.String("WH/OUT/0001"), "id": value.Int(1)}))
	assert.Equal(t, "{\n  \"id\": 1,\n  \"name\": \"WH/OUT/0001\"\n}\n", buf.String())
}

func TestOutputFormatter_TextStringer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(batch.RecordRef{Model: "stock.move", ID: 5}))
	assert.Equal(t, "stock.move/5\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E001", "call failed", map[string]string{"model": "res.partner"}))
	assert.Contains(t, buf.String(), "Error [E001]: call failed")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "call failed", map[string]string{"model": "res.partner"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			formatter.VerboseLog("fetching %d", 108080)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "fetching 108080")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"batch", WrapExitError(ExitFailure, "1 ok, 1 failed", errBatchFailed), ErrCodeBatch},
		{"auth", fmt.Errorf("read: %w", &rpc.AuthenticationError{Login: "admin", Err: errors.New("bad password")}), ErrCodeAuthentication},
		{"expired", &rpc.SessionExpiredError{}, ErrCodeSessionExpired},
		{"not found", &odoo.RecordNotFoundError{Model: "stock.move", IDs: []int64{3}}, ErrCodeNotFound},
		{"write rejected", &odoo.WriteRejectedError{Model: "stock.move", IDs: []int64{3}, Result: value.Bool(false)}, ErrCodeWriteRejected},
		{"wizard", &picking.WizardRequiredError{PickingID: 1, Model: "stock.immediate.transfer"}, ErrCodeWizard},
		{"transport", &rpc.TransportError{Endpoint: "/web/dataset/call_kw", StatusCode: 502, Err: errors.New("bad gateway")}, ErrCodeTransport},
		{"remote", &rpc.RPCError{Model: "res.partner", Method: "frobnicate", Fault: rpc.Fault{Message: "no such method"}}, ErrCodeRemote},
		{"command", NewExitError(ExitCommandError, "bad flag"), ErrCodeCommand},
		{"generic", errors.New("boom"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestReportView(t *testing.T) {
	report := &batch.BatchReport{
		RunID: "run-1",
		Items: []batch.ItemResult{
			{Ref: batch.RecordRef{Model: "stock.move", ID: 1}, Status: batch.StatusOK},
		},
	}
	view := reportView{report}
	assert.Contains(t, view.String(), report.Summary())

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"run-1"`)
}
