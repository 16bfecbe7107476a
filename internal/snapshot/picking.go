package snapshot

import (
	"fmt"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

// Models and fields the snapshots are built from.
const (
	ModelPicking = "stock.picking"
	ModelMove    = "stock.move"
	ModelStatus  = "salla.order.status"

	// LinkField lists a picking's moves. It is replaced by move_ids in the
	// document.
	LinkField = "move_ids_without_package"

	rootKey    = "stock_picking"
	moveIDsKey = "move_ids"
	movesKey   = "moves"
)

// DefaultPickingFields is the picking whitelist.
var DefaultPickingFields = odoo.Fields(
	"id",
	"name",
	"origin",
	"move_type",
	"state",
	"location_id",
	"location_dest_id",
	LinkField,
	"picking_type_id",
	"warehouse_address_id",
	"picking_type_code",
	"partner_id",
	"sale_id",
	"salla_order_status_id",
)

// DefaultMoveFields is the move whitelist.
var DefaultMoveFields = odoo.Fields(
	"id",
	"product_id",
	"never_product_template_attribute_value_ids",
	"description_picking",
	"product_qty",
	"product_uom_qty",
	"product_uom",
	"product_uom_category_id",
	"product_tmpl_id",
)

// DefaultReplayFields are the move fields a replay writes back. Computed
// fields such as product_qty are never written.
var DefaultReplayFields = []string{"product_uom_qty", "description_picking"}

// Picking is a picking with its moves.
type Picking struct {
	Parent  value.Object
	MoveIDs []int64
	Moves   []value.Object
}

// ID returns the picking's record id.
func (p *Picking) ID() int64 {
	id, _ := value.AsInt(p.Parent["id"])
	return id
}

// Name returns the picking reference, such as WH/OUT/00123.
func (p *Picking) Name() string {
	s, _ := value.AsString(p.Parent["name"])
	return s
}

// Value returns the document form of p.
func (p *Picking) Value() value.Object {
	root := p.Parent.Clone()
	if root == nil {
		root = value.Object{}
	}
	root[moveIDsKey] = value.Ints(p.MoveIDs...)
	moves := make(value.Array, len(p.Moves))
	for i, m := range p.Moves {
		moves[i] = m.Clone()
	}
	root[movesKey] = moves
	return value.Object{rootKey: root}
}

// MarshalJSON encodes the document with sorted keys.
func (p *Picking) MarshalJSON() ([]byte, error) {
	return value.Marshal(p.Value())
}

// Digest returns the content hash of the document.
func (p *Picking) Digest() (string, error) {
	return value.Digest(value.DomainSnapshot, p.Value())
}

// DecodePicking parses a picking document.
func DecodePicking(data []byte) (*Picking, error) {
	v, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode picking snapshot: %w", err)
	}
	doc, ok := value.AsObject(v)
	if !ok {
		return nil, fmt.Errorf("picking snapshot: expected object, got %s", value.KindOf(v))
	}
	root, ok := value.AsObject(doc[rootKey])
	if !ok {
		return nil, fmt.Errorf("picking snapshot: missing %q object", rootKey)
	}

	p := &Picking{Parent: root.Without(moveIDsKey, movesKey)}
	if _, ok := value.AsInt(p.Parent["id"]); !ok {
		return nil, fmt.Errorf("picking snapshot: missing integer id")
	}
	if raw, present := root[moveIDsKey]; present {
		ids, ok := value.IntSlice(raw)
		if !ok {
			return nil, fmt.Errorf("picking snapshot: %s must be a list of integers", moveIDsKey)
		}
		p.MoveIDs = ids
	}
	if raw, present := root[movesKey]; present {
		arr, ok := value.AsArray(raw)
		if !ok {
			return nil, fmt.Errorf("picking snapshot: %s must be a list", movesKey)
		}
		for i, elem := range arr {
			move, ok := value.AsObject(elem)
			if !ok {
				return nil, fmt.Errorf("picking snapshot: moves[%d] is %s, not an object", i, value.KindOf(elem))
			}
			if _, ok := value.AsInt(move["id"]); !ok {
				return nil, fmt.Errorf("picking snapshot: moves[%d] has no integer id", i)
			}
			p.Moves = append(p.Moves, move)
		}
	}
	return p, nil
}

// MoveUpdates turns the snapshot's moves into update requests that write
// back the given fields. Many2one pairs collapse to their id; moves lacking
// all of the fields are skipped.
func (p *Picking) MoveUpdates(fields ...string) []batch.UpdateRequest {
	if len(fields) == 0 {
		fields = DefaultReplayFields
	}
	var out []batch.UpdateRequest
	for _, m := range p.Moves {
		id, _ := value.AsInt(m["id"])
		vals := writable(m.Pick(fields...))
		if len(vals) == 0 {
			continue
		}
		out = append(out, batch.UpdateRequest{Model: ModelMove, ID: id, Values: vals})
	}
	return out
}

// PickingUpdate turns the snapshot's parent into an update request for the
// given fields, or false if none are present.
func (p *Picking) PickingUpdate(fields ...string) (batch.UpdateRequest, bool) {
	vals := writable(p.Parent.Pick(fields...).Without("id"))
	if len(vals) == 0 {
		return batch.UpdateRequest{}, false
	}
	return batch.UpdateRequest{Model: ModelPicking, ID: p.ID(), Values: vals}, true
}

// writable converts read-format values to write format.
func writable(vals value.Object) value.Object {
	out := make(value.Object, len(vals))
	for k, v := range vals {
		if arr, ok := value.AsArray(v); ok && len(arr) == 2 {
			if _, isName := arr[1].(value.String); isName {
				if id, ok := odoo.Many2OneID(arr); ok {
					out[k] = value.Int(id)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}
