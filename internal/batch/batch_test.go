package batch

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteRecords(ctx context.Context, model string, ids []int64, vals value.Object) (bool, error) {
	args := m.Called(ctx, model, ids, vals)
	return args.Bool(0), args.Error(1)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadRecord(ctx context.Context, model string, id int64, fields odoo.Whitelist) (value.Object, error) {
	args := m.Called(ctx, model, id, fields)
	rec, _ := args.Get(0).(value.Object)
	return rec, args.Error(1)
}

func qty(n int64) value.Object { return value.Object{"quantity": value.Int(n)} }

func uomQty(n int64) value.Object { return value.Object{"product_uom_qty": value.Int(n)} }

func TestNormalize_ResolvesAliases(t *testing.T) {
	reqs := []UpdateRequest{
		{Model: "stock.move", ID: 1, Values: qty(5)},
		{Model: "stock.move", ID: 2, Values: qty(5)},
		{Model: "stock.move", ID: 3, Values: qty(7)},
	}
	n := Normalizer{Aliases: AliasTable{"stock.move": {"quantity": "product_uom_qty"}}}

	got, err := n.Normalize(reqs)
	require.NoError(t, err)
	assert.Equal(t, []UpdateRequest{
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
		{Model: "stock.move", ID: 2, Values: uomQty(5)},
		{Model: "stock.move", ID: 3, Values: uomQty(7)},
	}, got)

	// Input untouched.
	assert.Equal(t, qty(5), reqs[0].Values)
}

func TestNormalize_AliasesAreScopedPerModel(t *testing.T) {
	n := Normalizer{Aliases: DefaultAliases()}
	got, err := n.Normalize([]UpdateRequest{{Model: "stock.picking", ID: 1, Values: qty(5)}})
	require.NoError(t, err)
	assert.Equal(t, qty(5), got[0].Values)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := Normalizer{Aliases: DefaultAliases()}
	once, err := n.Normalize([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: value.Object{"quantity": value.Int(5), "description_picking": value.String("x")}},
		{Model: "stock.picking", ID: 2, Values: value.Object{"x_studio_delivered": value.Bool(true)}},
	})
	require.NoError(t, err)

	twice, err := n.Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalize_AliasAndConcreteField(t *testing.T) {
	n := Normalizer{Aliases: DefaultAliases()}

	got, err := n.Normalize([]UpdateRequest{{Model: "stock.move", ID: 1, Values: value.Object{
		"quantity":        value.Int(5),
		"product_uom_qty": value.Int(5),
	}}})
	require.NoError(t, err)
	assert.Equal(t, uomQty(5), got[0].Values)

	for _, other := range []value.Value{value.Int(6), value.Float(5)} {
		_, err = n.Normalize([]UpdateRequest{{Model: "stock.move", ID: 1, Values: value.Object{
			"quantity":        value.Int(5),
			"product_uom_qty": other,
		}}})
		var conflict *FieldConflictError
		require.ErrorAs(t, err, &conflict, "product_uom_qty=%v", other)
		assert.Equal(t, "quantity", conflict.Alias)
		assert.Equal(t, "product_uom_qty", conflict.Field)
	}
}

func TestNormalize_Strict(t *testing.T) {
	n := Normalizer{
		Aliases: DefaultAliases(),
		Strict:  true,
		Known:   map[string][]string{"stock.move": {"product_uom_qty", "description_picking"}},
	}

	_, err := n.Normalize([]UpdateRequest{{Model: "stock.move", ID: 1, Values: value.Object{"quantity": value.Int(1), "description_picking": value.String("a")}}})
	require.NoError(t, err)

	_, err = n.Normalize([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: value.Object{"qty_done": value.Int(1)}},
		{Model: "stock.move", ID: 2, Values: value.Object{"bogus": value.Int(1)}},
	})
	var unknown *UnknownFieldMappingError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "qty_done", unknown.Field)
	assert.Contains(t, err.Error(), `"bogus"`, "every offending request is reported")
}

func TestGroup_ConcreteScenario(t *testing.T) {
	groups, err := Group([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
		{Model: "stock.move", ID: 2, Values: uomQty(5)},
		{Model: "stock.move", ID: 3, Values: uomQty(7)},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []int64{1, 2}, groups[0].Members)
	assert.Equal(t, uomQty(5), groups[0].Values)
	assert.Equal(t, []int64{3}, groups[1].Members)
	assert.Equal(t, uomQty(7), groups[1].Values)
	assert.NotEqual(t, groups[0].Digest, groups[1].Digest)
}

func TestGroup_StructuralEquality(t *testing.T) {
	groups, err := Group([]UpdateRequest{
		{Model: "stock.picking", ID: 1, Values: value.Object{"a": value.Int(5), "b": value.Array{value.Int(1)}}},
		{Model: "stock.picking", ID: 2, Values: value.Object{"b": value.Array{value.Int(1)}, "a": value.Int(5)}},
		{Model: "stock.picking", ID: 3, Values: value.Object{"a": value.Int(5), "b": value.Array{value.Int(2)}}},
		{Model: "stock.move", ID: 4, Values: value.Object{"a": value.Int(5), "b": value.Array{value.Int(1)}}},
		{Model: "stock.picking", ID: 5, Values: value.Object{"a": value.Float(5), "b": value.Array{value.Int(1)}}},
	})
	require.NoError(t, err)
	require.Len(t, groups, 4)
	assert.Equal(t, []int64{1, 2}, groups[0].Members, "key order does not matter")
	assert.Equal(t, []int64{3}, groups[1].Members)
	assert.Equal(t, "stock.move", groups[2].Model, "same values on another model never share a group")
	assert.Equal(t, []int64{5}, groups[3].Members, "5.0 is not written as 5")
	assert.Equal(t, value.Float(5), groups[3].Values["a"])
}

func TestGroup_PreservesStringBytes(t *testing.T) {
	composed := value.String("Caf\u00e9")
	decomposed := value.String("Cafe\u0301")

	groups, err := Group([]UpdateRequest{
		{Model: "stock.picking", ID: 1, Values: value.Object{"origin": composed}},
		{Model: "stock.picking", ID: 2, Values: value.Object{"origin": decomposed}},
		{Model: "stock.picking", ID: 3, Values: value.Object{"origin": composed}},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []int64{1, 3}, groups[0].Members)
	assert.Equal(t, composed, groups[0].Values["origin"])
	assert.Equal(t, []int64{2}, groups[1].Members)
	assert.Equal(t, decomposed, groups[1].Values["origin"])
}

func TestSubmit_WritesEachRecordItsOwnSpelling(t *testing.T) {
	composed := value.Object{"origin": value.String("Caf\u00e9")}
	decomposed := value.Object{"origin": value.String("Cafe\u0301")}

	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.picking", []int64{1}, composed).Return(true, nil).Once()
	w.On("WriteRecords", mock.Anything, "stock.picking", []int64{2}, decomposed).Return(true, nil).Once()

	b := New(w, WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), []UpdateRequest{
		{Model: "stock.picking", ID: 1, Values: composed},
		{Model: "stock.picking", ID: 2, Values: decomposed},
	})

	w.AssertExpectations(t)
	assert.Equal(t, 2, report.Writes)
	assert.True(t, report.OK())
}

func TestGroup_DuplicateRecords(t *testing.T) {
	groups, err := Group([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
		{Model: "stock.move", ID: 2, Values: uomQty(5)},
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2}, groups[0].Members)

	_, err = Group([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
		{Model: "stock.move", ID: 1, Values: uomQty(7)},
	})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int64(1), invalid.ID)
}

func TestPlan_DuplicateRecords(t *testing.T) {
	b := New(&mockWriter{})
	plan := b.Plan([]UpdateRequest{
		{Model: "stock.move", ID: 1, Values: qty(5)},
		{Model: "stock.move", ID: 2, Values: qty(5)},
		{Model: "stock.move", ID: 1, Values: uomQty(5)},
		{Model: "stock.move", ID: 2, Values: qty(7)},
	})

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []int64{1, 2}, plan.Groups[0].Members)

	require.Len(t, plan.Rejected, 1)
	assert.Equal(t, RecordRef{"stock.move", 2}, plan.Rejected[0].Ref)
	var invalid *InvalidRequestError
	require.ErrorAs(t, plan.Rejected[0].Err, &invalid)
	assert.Equal(t, "conflicting duplicate request", invalid.Reason)
}

func TestGroup_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(30)
		reqs := make([]UpdateRequest, n)
		for i := range reqs {
			vals := value.Object{"product_uom_qty": value.Int(int64(rng.Intn(4)))}
			if rng.Intn(3) == 0 {
				vals["product_uom_qty"] = value.Float(float64(rng.Intn(4)))
			}
			if rng.Intn(2) == 0 {
				vals["state"] = value.String([]string{"draft", "done", "Caf\u00e9", "Cafe\u0301"}[rng.Intn(4)])
			}
			reqs[i] = UpdateRequest{Model: "stock.move", ID: int64(i + 1), Values: vals}
		}

		groups, err := Group(reqs)
		require.NoError(t, err)

		seen := make(map[int64]int)
		groupOf := make(map[int64]int)
		for gi, g := range groups {
			for _, id := range g.Members {
				seen[id]++
				groupOf[id] = gi
			}
		}
		require.Len(t, seen, n)
		for id, count := range seen {
			require.Equal(t, 1, count, "id %d appears in %d groups", id, count)
		}
		for i := range reqs {
			for j := range reqs {
				same := value.Identical(reqs[i].Values, reqs[j].Values)
				assert.Equal(t, same, groupOf[reqs[i].ID] == groupOf[reqs[j].ID])
			}
		}

		// Membership is independent of input order.
		shuffled := append([]UpdateRequest(nil), reqs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		regrouped, err := Group(shuffled)
		require.NoError(t, err)
		assert.Equal(t, memberSets(groups), memberSets(regrouped))
	}
}

func memberSets(groups []UpdateGroup) map[string][]int64 {
	out := make(map[string][]int64, len(groups))
	for _, g := range groups {
		ids := append([]int64(nil), g.Members...)
		for i := 1; i < len(ids); i++ {
			for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			}
		}
		out[g.Digest] = ids
	}
	return out
}

func TestGroup_RejectsNonFiniteValues(t *testing.T) {
	_, err := Group([]UpdateRequest{{Model: "stock.move", ID: 1, Values: value.Object{"x": value.Float(nan())}}})
	assert.Error(t, err)
}

func TestSubmit_OneWritePerGroup(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{1, 2}, uomQty(5)).Return(true, nil).Once()
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{3}, uomQty(7)).Return(true, nil).Once()

	b := New(w, WithRunIDs(NewFixedGenerator("run-1")))
	report := b.Run(context.Background(), []UpdateRequest{
		{Model: "stock.move", ID: 1, Values: qty(5)},
		{Model: "stock.move", ID: 2, Values: qty(5)},
		{Model: "stock.move", ID: 3, Values: qty(7)},
	})

	w.AssertExpectations(t)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Groups)
	assert.Equal(t, 2, report.Writes)
	assert.True(t, report.OK())
	assert.Equal(t, []RecordRef{{"stock.move", 1}, {"stock.move", 2}, {"stock.move", 3}}, report.Succeeded())
	assert.Empty(t, report.Failed())
}

func TestSubmit_FallsBackToPerRecordWrites(t *testing.T) {
	missing := &odoo.RecordNotFoundError{Model: "stock.move", IDs: []int64{3}}
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{1, 2, 3, 4, 5}, uomQty(9)).Return(false, missing).Once()
	for _, id := range []int64{1, 2, 4, 5} {
		w.On("WriteRecords", mock.Anything, "stock.move", []int64{id}, uomQty(9)).Return(true, nil).Once()
	}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{3}, uomQty(9)).Return(false, missing).Once()

	b := New(w, WithRunIDs(NewFixedGenerator("run-1")))
	report := b.Run(context.Background(), Requests("stock.move", []int64{1, 2, 3, 4, 5}, qty(9)))

	w.AssertExpectations(t)
	assert.Len(t, report.Succeeded(), 4)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.True(t, odoo.IsNotFound(failed[RecordRef{"stock.move", 3}]))
	assert.Equal(t, 6, report.Writes)
	assert.False(t, report.OK())
}

func TestSubmit_PerRecordWritesWhenMultiIDDisabled(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.picking", mock.MatchedBy(func(ids []int64) bool { return len(ids) == 1 }), mock.Anything).Return(true, nil).Times(3)

	b := New(w, WithMultiID(false), WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), Requests("stock.picking", []int64{10, 11, 12}, value.Object{"x_studio_delivered": value.Bool(true)}))

	w.AssertExpectations(t)
	assert.Equal(t, 3, report.Writes)
	assert.True(t, report.OK())
}

func TestSubmit_CancelledContextFailsRemainingRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{1}, uomQty(1)).
		Run(func(mock.Arguments) { cancel() }).
		Return(true, nil).Once()

	b := New(w, WithMultiID(false), WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(ctx, Requests("stock.move", []int64{1, 2}, uomQty(1)))

	w.AssertExpectations(t)
	assert.Equal(t, []RecordRef{{"stock.move", 1}}, report.Succeeded())
	assert.ErrorIs(t, report.Failed()[RecordRef{"stock.move", 2}], context.Canceled)
}

func TestRun_RejectsInvalidRequestsIndividually(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{1}, uomQty(1)).Return(true, nil).Once()

	b := New(w, WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), []UpdateRequest{
		{Model: "stock.move", ID: 1, Values: qty(1)},
		{Model: "stock.move", ID: 0, Values: qty(1)},
		{Model: "stock.move", ID: 2, Values: value.Object{}},
		{Model: "stock.move", ID: 3, Values: value.Object{"quantity": value.Int(1), "product_uom_qty": value.Int(2)}},
	})

	w.AssertExpectations(t)
	require.Len(t, report.Items, 4)
	assert.Equal(t, StatusOK, report.Items[0].Status)

	var invalid *InvalidRequestError
	assert.ErrorAs(t, report.Items[1].Err, &invalid)
	assert.ErrorAs(t, report.Items[2].Err, &invalid)
	var conflict *FieldConflictError
	assert.ErrorAs(t, report.Items[3].Err, &conflict)
	assert.Len(t, report.Failed(), 3)
}

func TestRun_StrictModeRejectsUnknownFields(t *testing.T) {
	w := &mockWriter{}
	b := New(w, WithStrict(map[string][]string{"stock.move": {"product_uom_qty"}}), WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), []UpdateRequest{{Model: "stock.move", ID: 1, Values: value.Object{"qty_done": value.Int(1)}}})

	w.AssertNotCalled(t, "WriteRecords", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	var unknown *UnknownFieldMappingError
	require.ErrorAs(t, report.Failed()[RecordRef{"stock.move", 1}], &unknown)
}

func TestSubmit_Verification(t *testing.T) {
	vals := value.Object{"salla_order_status_id": value.Int(2), "x_studio_delivered": value.Bool(true)}
	fields := odoo.Fields("salla_order_status_id", "x_studio_delivered")

	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.picking", []int64{1, 2, 3}, vals).Return(true, nil).Once()

	r := &mockReader{}
	r.On("ReadRecord", mock.Anything, "stock.picking", int64(1), fields).Return(value.Object{
		"id":                    value.Int(1),
		"salla_order_status_id": value.Array{value.Int(2), value.String("Delivered")},
		"x_studio_delivered":    value.Bool(true),
	}, nil)
	r.On("ReadRecord", mock.Anything, "stock.picking", int64(2), fields).Return(value.Object{
		"id":                    value.Int(2),
		"salla_order_status_id": value.Array{value.Int(1), value.String("New")},
		"x_studio_delivered":    value.Bool(true),
	}, nil)
	r.On("ReadRecord", mock.Anything, "stock.picking", int64(3), fields).Return(nil, errors.New("boom"))

	b := New(w, WithVerification(r), WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), Requests("stock.picking", []int64{1, 2, 3}, vals))

	w.AssertExpectations(t)
	r.AssertExpectations(t)
	assert.True(t, report.Verified)
	require.Len(t, report.Items, 3)
	assert.Equal(t, StatusOK, report.Items[0].Status)

	assert.Equal(t, StatusMismatch, report.Items[1].Status)
	require.Len(t, report.Items[1].Mismatches, 1)
	assert.Equal(t, "salla_order_status_id", report.Items[1].Mismatches[0].Field)
	assert.True(t, IsVerification(report.Items[1].Err))

	assert.Equal(t, StatusUnverified, report.Items[2].Status)
	assert.ErrorContains(t, report.Items[2].Err, "boom")

	// Mismatches are not write failures.
	assert.Empty(t, report.Failed())
	assert.Len(t, report.Succeeded(), 3)
	assert.Len(t, report.Mismatched(), 2)
}

func TestSubmit_SkipsVerificationOfFailedWrites(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteRecords", mock.Anything, "stock.move", []int64{1}, uomQty(1)).Return(false, errors.New("rejected"))
	r := &mockReader{}

	b := New(w, WithVerification(r), WithRunIDs(NewFixedGenerator("r")))
	report := b.Run(context.Background(), Requests("stock.move", []int64{1}, uomQty(1)))

	r.AssertNotCalled(t, "ReadRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, report.Failed(), 1)
}

func TestPersisted(t *testing.T) {
	tests := []struct {
		name string
		want value.Value
		got  value.Value
		ok   bool
	}{
		{"equal ints", value.Int(5), value.Int(5), true},
		{"int vs float", value.Int(5), value.Float(5), true},
		{"different numbers", value.Int(5), value.Float(4.5), false},
		{"many2one by id", value.Int(2), value.Array{value.Int(2), value.String("Shipped")}, true},
		{"many2one other id", value.Int(2), value.Array{value.Int(3), value.String("Other")}, false},
		{"bool true", value.Bool(true), value.Bool(true), true},
		{"bool truthiness", value.Bool(true), value.String("yes"), true},
		{"bool false vs true", value.Bool(false), value.Bool(true), false},
		{"empty string reads false", value.String(""), value.Bool(false), true},
		{"clearing many2one", value.Bool(false), value.Bool(false), true},
		{"null reads false", value.Null{}, value.Bool(false), true},
		{"string", value.String("done"), value.String("draft"), false},
		{"same string", value.String("Caf\u00e9"), value.String("Caf\u00e9"), true},
		{"normalized string", value.String("Cafe\u0301"), value.String("Caf\u00e9"), false},
		{"float field", value.Float(2.5), value.Float(2.5), true},
		{"number vs string", value.Int(5), value.String("5"), false},
		{"ids vs floats", value.Ints(1, 2), value.Array{value.Float(1), value.Float(2)}, false},
		{"id list", value.Ints(1, 2), value.Ints(1, 2), true},
		{"command list skipped", value.Array{value.Array{value.Int(6), value.Int(0), value.Ints(1)}}, value.Ints(9), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, persisted(tt.want, tt.got))
		})
	}
}

func TestReportLines(t *testing.T) {
	report := &BatchReport{RunID: "r", Groups: 1, Writes: 2}
	report.add(ItemResult{Ref: RecordRef{"stock.move", 1}, Values: uomQty(5), Status: StatusOK})
	report.add(ItemResult{Ref: RecordRef{"stock.move", 3}, Values: uomQty(5), Status: StatusFailed, Err: &odoo.RecordNotFoundError{Model: "stock.move", IDs: []int64{3}}})
	report.add(ItemResult{
		Ref:    RecordRef{"stock.picking", 7},
		Status: StatusMismatch,
		Err: &VerificationError{Ref: RecordRef{"stock.picking", 7}, Mismatches: []Mismatch{
			{Field: "x_studio_delivered", Want: value.Bool(true), Got: value.Bool(false)},
		}},
	})

	assert.Equal(t, []string{
		`ok         stock.move/1 {"product_uom_qty":5}`,
		`failed     stock.move/3: stock.move record 3 not found`,
		`mismatch   stock.picking/7: stock.picking/7: verification failed: x_studio_delivered = false (expected true)`,
	}, report.Lines())
	assert.Equal(t, "run r: 1 ok, 1 failed, 1 mismatch, 0 unverified (1 groups, 2 writes)", report.Summary())
}

func TestAliasTableMerge(t *testing.T) {
	merged := DefaultAliases().Merge(AliasTable{
		"stock.move":    {"qty": "product_uom_qty"},
		"stock.picking": {"status": "salla_order_status_id"},
	})
	f, ok := merged.Resolve("stock.move", "quantity")
	assert.True(t, ok)
	assert.Equal(t, "product_uom_qty", f)
	_, ok = merged.Resolve("stock.move", "qty")
	assert.True(t, ok)
	_, ok = DefaultAliases().Resolve("stock.picking", "status")
	assert.False(t, ok, "merge must not mutate the receiver")
}
