// Package snapshot captures remote records as point-in-time JSON documents
// and replays them as update requests.
//
// A picking snapshot holds one stock.picking restricted to whitelisted
// fields, the ids of its moves, and the moves themselves:
//
//	{"stock_picking": {"id": 108080, ..., "move_ids": [1, 2], "moves": [{...}, {...}]}}
//
// Reference data (order statuses) is a flat array of objects with exactly
// the fields id, externalStatusId, name, type, and slug.
package snapshot
