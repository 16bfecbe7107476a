package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odoorpc/internal/snapshot"
	"github.com/roach88/odoorpc/internal/store"
	"github.com/roach88/odoorpc/internal/testutil"
	"github.com/roach88/odoorpc/internal/value"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func (r cliResult) code() int {
	if r.err == nil {
		return ExitSuccess
	}
	return GetExitCode(r.err)
}

// execute runs the CLI against fake with connection settings taken from a
// fake environment.
func execute(t *testing.T, fake *testutil.FakeOdoo, args ...string) cliResult {
	t.Helper()
	env := map[string]string{}
	if fake != nil {
		env = map[string]string{
			"ODOO_URL":      fake.URL(),
			"ODOO_DB":       fake.Database(),
			"ODOO_USERNAME": "admin",
			"ODOO_PASSWORD": "admin",
		}
	}
	opts := &RootOptions{Env: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odoorpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func seedPicking(fake *testutil.FakeOdoo) {
	fake.Seed(snapshot.ModelPicking, value.Object{
		"id":                      value.Int(108080),
		"name":                    value.String("WH/OUT/00123"),
		"state":                   value.String("assigned"),
		snapshot.LinkField:        value.Ints(501, 502),
		"salla_order_status_id":   value.Bool(false),
		"x_studio_delivered":      value.Bool(false),
		"x_studio_internal_notes": value.String("not for export"),
	})
	fake.Seed(snapshot.ModelMove,
		value.Object{
			"id":                  value.Int(501),
			"description_picking": value.String("Desk"),
			"product_uom_qty":     value.Float(2),
			"picking_id":          value.NewArray(value.Int(108080), value.String("WH/OUT/00123")),
		},
		value.Object{
			"id":                  value.Int(502),
			"description_picking": value.Bool(false),
			"product_uom_qty":     value.Float(0.5),
			"picking_id":          value.NewArray(value.Int(108080), value.String("WH/OUT/00123")),
		},
	)
}

func TestRead_RecordJSON(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	fake.Seed("res.partner", value.Object{"id": value.Int(14), "name": value.String("Azure Interior"), "email": value.String("azure@example.com")})

	res := execute(t, fake, "--format", "json", "read", "res.partner", "14", "--fields", "id,name")
	require.NoError(t, res.err)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"id": float64(14), "name": "Azure Interior"}, resp.Data)
}

func TestRead_SearchUsesWhitelist(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)

	res := execute(t, fake, "read", "stock.move", "--domain", `[["picking_id","=",108080]]`, "--order", "id desc")
	require.NoError(t, res.err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, float64(502), records[0]["id"])

	calls := fake.CallsTo("stock.move", "search_read")
	require.Len(t, calls, 1)
	fields, ok := value.AsArray(calls[0].Kwargs["fields"])
	require.True(t, ok)
	assert.Contains(t, fields, value.String("product_uom_qty"))
}

func TestRead_NoWhitelist(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)

	res := execute(t, fake, "read", "res.partner", "14")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.err.Error(), "no whitelist configured for res.partner")
}

func TestRead_NotFound(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)

	res := execute(t, fake, "read", "res.partner", "99", "--fields", "name")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Equal(t, ErrCodeNotFound, errorCode(res.err))
}

func TestMissingConnectionSettings(t *testing.T) {
	res := execute(t, nil, "read", "res.partner", "1", "--fields", "name")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.err.Error(), "missing connection parameters")
}

func TestFetch_WritesSnapshotAndStores(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	cfg := writeConfig(t, "store:\n  path: "+db+"\n")

	res := execute(t, fake, "-c", cfg, "fetch", "108080", "-o", dir)
	require.NoError(t, res.err)

	path := filepath.Join(dir, "stock_picking_108080.json")
	assert.Contains(t, res.stdout, path)
	assert.Contains(t, res.stdout, "WH/OUT/00123")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	p, err := snapshot.DecodePicking(data)
	require.NoError(t, err)
	assert.Equal(t, []int64{501, 502}, p.MoveIDs)
	assert.NotContains(t, string(data), "x_studio_internal_notes")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.LatestSnapshot(context.Background(), snapshot.ModelPicking, 108080)
	require.NoError(t, err)
	digest, err := p.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, snap.Digest)

	// Fetching unchanged data again stores nothing new.
	require.NoError(t, execute(t, fake, "-c", cfg, "fetch", "108080", "-o", dir).err)
	snaps, err := st.ListSnapshots(context.Background(), snapshot.ModelPicking, 108080)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestFetch_Stdout(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)

	res := execute(t, fake, "fetch", "108080", "--stdout")
	require.NoError(t, res.err)

	p, err := snapshot.DecodePicking([]byte(res.stdout))
	require.NoError(t, err)
	assert.Equal(t, int64(108080), p.ID())
	assert.Len(t, p.Moves, 2)
}

func TestFetch_InvalidID(t *testing.T) {
	res := execute(t, nil, "fetch", "abc")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
}

func TestStatuses(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	fake.Seed(snapshot.ModelStatus,
		value.Object{"id": value.Int(1), "salla_status_id": value.Int(566146469), "name": value.String("Pending"), "type": value.String("original"), "slug": value.String("under_review")},
		value.Object{"id": value.Int(2), "name": value.String("Delivered")},
	)
	dir := t.TempDir()

	res := execute(t, fake, "statuses", "--out", dir)
	require.NoError(t, res.err)

	data, err := os.ReadFile(filepath.Join(dir, snapshot.StatusFilename))
	require.NoError(t, err)
	entries, err := snapshot.DecodeStatuses(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, value.Int(566146469), entries[0]["externalStatusId"])
	assert.Equal(t, value.Null{}, entries[1]["slug"])
}

func TestUpdate_FlagsWithAlias(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	db := filepath.Join(t.TempDir(), "history.db")
	cfg := writeConfig(t, "store:\n  path: "+db+"\n")

	res := execute(t, fake, "-c", cfg, "update", "--model", "stock.move", "--ids", "501,502", "--set", "quantity=99")
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "2 ok, 0 failed")

	// One grouped write with the alias resolved.
	writes := fake.CallsTo("stock.move", "write")
	require.Len(t, writes, 1)
	vals, _ := value.AsObject(writes[0].Args[1])
	assert.Equal(t, value.Object{"product_uom_qty": value.Int(99)}, vals)
	for _, id := range []int64{501, 502} {
		rec, _ := fake.Record("stock.move", id)
		assert.Equal(t, value.Int(99), rec["product_uom_qty"])
	}

	hist := execute(t, nil, "history", "--db", db)
	require.NoError(t, hist.err)
	assert.Contains(t, hist.stdout, "2 ok, 0 failed")

	items := execute(t, nil, "history", "--db", db, "--record", "stock.move/501")
	require.NoError(t, items.err)
	assert.Contains(t, items.stdout, "stock.move/501: ok")
}

func TestUpdate_FromConfig(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	cfg := writeConfig(t, `updates:
  model: stock.move
  records:
    - id: 501
      quantity: 3
    - id: 502
      quantity: 4
`)

	res := execute(t, fake, "-c", cfg, "update", "--per-record")
	require.NoError(t, res.err, res.stdout)

	assert.Len(t, fake.CallsTo("stock.move", "write"), 2)
	rec, _ := fake.Record("stock.move", 502)
	assert.Equal(t, value.Int(4), rec["product_uom_qty"])
}

func TestUpdate_PartialFailure(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)

	res := execute(t, fake, "update", "--model", "stock.move", "--ids", "501,999", "--set", "quantity=1")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Equal(t, ErrCodeBatch, errorCode(res.err))
	assert.Contains(t, res.stdout, "stock.move/999")

	rec, _ := fake.Record("stock.move", 501)
	assert.Equal(t, value.Int(1), rec["product_uom_qty"])
}

func TestUpdate_DryRun(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)

	res := execute(t, fake, "update", "--model", "stock.move", "--ids", "501,502", "--set", "quantity=5", "--dry-run")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "write stock.move [501 502]")
	assert.Contains(t, res.stdout, "1 groups, 0 rejected")
	assert.Empty(t, fake.CallsTo("stock.move", "write"))
}

func TestUpdate_IncompleteFlags(t *testing.T) {
	res := execute(t, nil, "update", "--model", "stock.move")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
}

func TestUpdatePickings_WithHook(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	fake.DefineFields("stock.picking", map[string]string{"salla_order_status_id": "many2one", "x_studio_delivered": "boolean"})
	seedPicking(fake)
	fake.Handle("stock.picking", "update_salla", func(_ *testutil.Store, _ value.Array, _ value.Object) (value.Value, *testutil.Fault) {
		return value.Bool(true), nil
	})

	res := execute(t, fake, "update-pickings", "108080",
		"--set", "salla_order_status_id=2", "--set", "x_studio_delivered=true", "--hook", "update_salla")
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "hook update_salla(108080): true")

	rec, _ := fake.Record("stock.picking", 108080)
	assert.Equal(t, value.Int(2), rec["salla_order_status_id"])
	assert.Equal(t, value.Bool(true), rec["x_studio_delivered"])

	hooks := fake.CallsTo("stock.picking", "update_salla")
	require.Len(t, hooks, 1)
	assert.Equal(t, value.Array{value.Int(108080)}, hooks[0].Args)
}

func TestUpdatePickings_HookFailure(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	fake.Handle("stock.picking", "update_salla", func(_ *testutil.Store, _ value.Array, _ value.Object) (value.Value, *testutil.Fault) {
		return nil, testutil.UserFault("store unreachable")
	})

	res := execute(t, fake, "update-pickings", "108080", "--set", "x_studio_delivered=true", "--hook", "update_salla")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, "store unreachable")
}

func TestValidate(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	fake.Handle("stock.picking", "button_validate", func(_ *testutil.Store, _ value.Array, _ value.Object) (value.Value, *testutil.Fault) {
		return value.Bool(true), nil
	})

	res := execute(t, fake, "validate", "108080", "--skip-sms=false")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "picking 108080 validated")

	calls := fake.CallsTo("stock.picking", "button_validate")
	require.Len(t, calls, 1)
	ctxKw, _ := value.AsObject(calls[0].Kwargs["context"])
	assert.Equal(t, value.Bool(false), ctxKw["skip_sms"])
	assert.Equal(t, value.Bool(true), ctxKw["cancel_backorder"])
}

func TestValidate_WizardRequired(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	fake.Handle("stock.picking", "button_validate", func(_ *testutil.Store, _ value.Array, _ value.Object) (value.Value, *testutil.Fault) {
		return value.Object{
			"type":      value.String("ir.actions.act_window"),
			"res_model": value.String("stock.immediate.transfer"),
		}, nil
	})

	res := execute(t, fake, "validate", "108080")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Equal(t, ErrCodeWizard, errorCode(res.err))
}

func TestCall(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	fake.Handle("res.partner", "name_search", func(_ *testutil.Store, args value.Array, kwargs value.Object) (value.Value, *testutil.Fault) {
		return value.NewArray(value.NewArray(value.Int(14), value.String("Azure Interior"))), nil
	})

	res := execute(t, fake, "call", "res.partner", "name_search", "--args", `["Azure"]`, "--kwargs", `{"limit": 5}`)
	require.NoError(t, res.err)
	assert.JSONEq(t, `[[14, "Azure Interior"]]`, res.stdout)

	calls := fake.CallsTo("res.partner", "name_search")
	require.Len(t, calls, 1)
	assert.Equal(t, value.Array{value.String("Azure")}, calls[0].Args)
	assert.Equal(t, value.Int(5), calls[0].Kwargs["limit"])
}

func TestCall_BadArgs(t *testing.T) {
	res := execute(t, nil, "call", "res.partner", "name_search", "--args", `{"not": "a list"}`)
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
}

func TestReplay(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	dir := t.TempDir()
	require.NoError(t, execute(t, fake, "fetch", "108080", "-o", dir).err)

	// The server drifts; replaying the snapshot restores the recorded values.
	fake.Seed(snapshot.ModelMove, value.Object{
		"id":                  value.Int(501),
		"description_picking": value.String("changed"),
		"product_uom_qty":     value.Float(7),
		"picking_id":          value.NewArray(value.Int(108080), value.String("WH/OUT/00123")),
	})

	res := execute(t, fake, "replay", filepath.Join(dir, "stock_picking_108080.json"), "--fields", "product_uom_qty,description_picking")
	require.NoError(t, res.err, res.stdout)

	rec, _ := fake.Record("stock.move", 501)
	assert.Equal(t, value.Int(2), rec["product_uom_qty"])
	assert.Equal(t, value.String("Desk"), rec["description_picking"])
}

func TestReplay_DryRunNeedsNoConnection(t *testing.T) {
	fake := testutil.NewFakeOdoo(t)
	seedPicking(fake)
	dir := t.TempDir()
	require.NoError(t, execute(t, fake, "fetch", "108080", "-o", dir).err)
	before := len(fake.Calls())

	res := execute(t, nil, "replay", filepath.Join(dir, "stock_picking_108080.json"), "--dry-run")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "2 groups, 0 rejected")
	assert.Len(t, fake.Calls(), before)
}

func TestReplay_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"moves": []}`), 0o644))

	res := execute(t, nil, "replay", path)
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.err.Error(), `missing "stock_picking" object`)
}

func TestHistory_NoDatabase(t *testing.T) {
	res := execute(t, nil, "history")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
}

func TestHistory_UnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	res := execute(t, nil, "history", "--db", db, "nope")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.err.Error(), "run nope not found")
}

func TestRun_JSONError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--format", "json", "history", "--db", ""}, &stdout, &stderr)

	assert.Equal(t, ExitCommandError, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCommand, resp.Error.Code)
}

func TestRun_TextError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"fetch", "-5"}, &stdout, &stderr)

	assert.NotEqual(t, ExitSuccess, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "Error ["), stderr.String())
}
