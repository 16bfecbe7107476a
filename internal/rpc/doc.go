// Package rpc implements the session-authenticated JSON-RPC transport for
// an Odoo server.
//
// A Transport owns exactly one Session. It authenticates against
// /web/session/authenticate, keeps the server-issued cookies, and attaches
// them to every /web/dataset/call_kw request. When a call reports an
// expired session, the Transport re-authenticates once with the original
// credentials and retries the call once; a second failure propagates.
//
// Calls against one Transport are serialized: the session's cookie state
// is never mutated concurrently. Independent Transports may run in
// parallel.
package rpc
