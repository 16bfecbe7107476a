package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/roach88/odoorpc/internal/value"
)

// Fault is an error the fake server returns in the response envelope.
type Fault struct {
	Code    int
	Message string
	Name    string
	Detail  string
}

// Common faults.
var (
	FaultSessionExpired = &Fault{
		Code:    100,
		Message: "Odoo Session Expired",
		Name:    "odoo.http.SessionExpiredException",
		Detail:  "Session expired",
	}
	FaultAccessDenied = &Fault{
		Code:    200,
		Message: "Odoo Server Error",
		Name:    "odoo.exceptions.AccessDenied",
		Detail:  "Access Denied",
	}
)

// MissingFault mirrors the server's error for nonexistent records.
func MissingFault(model string, ids ...int64) *Fault {
	return &Fault{
		Code:    200,
		Message: "Odoo Server Error",
		Name:    "odoo.exceptions.MissingError",
		Detail:  fmt.Sprintf("Record does not exist or has been deleted.\n(Record: %s(%s,), User: 2)", model, joinIDs(ids)),
	}
}

// UserFault mirrors a business-rule rejection raised by the server.
func UserFault(msg string) *Fault {
	return &Fault{
		Code:    200,
		Message: "Odoo Server Error",
		Name:    "odoo.exceptions.UserError",
		Detail:  msg,
	}
}

// Handler answers one model method. It runs with the server lock held and
// may use Store to read or mutate seeded records.
type Handler func(s *Store, args value.Array, kwargs value.Object) (value.Value, *Fault)

// RecordedCall is one call_kw request as the server received it.
type RecordedCall struct {
	Model     string
	Method    string
	Args      value.Array
	Kwargs    value.Object
	SessionID string
}

// FakeOption configures a FakeOdoo.
type FakeOption func(*FakeOdoo)

// WithCredentials sets the database and credentials the server accepts.
func WithCredentials(db, login, password string) FakeOption {
	return func(f *FakeOdoo) {
		f.db, f.login, f.password = db, login, password
	}
}

// WithSessionCookie makes every login issue the same cookie.
func WithSessionCookie(name, sid string) FakeOption {
	return func(f *FakeOdoo) {
		f.cookieName, f.fixedSID = name, sid
	}
}

// WithLeakFields makes read and search_read return every stored field
// regardless of the requested field list, like a server that ignores it.
func WithLeakFields() FakeOption {
	return func(f *FakeOdoo) { f.leakFields = true }
}

// FakeOdoo is an in-memory JSON-RPC server speaking the subset of the Odoo
// web protocol the client uses: login, logout, and call_kw with read,
// search_read, write, and fields_get, plus any custom handlers.
type FakeOdoo struct {
	server *httptest.Server

	mu         sync.Mutex
	db         string
	login      string
	password   string
	uid        int64
	cookieName string
	fixedSID   string
	leakFields bool

	store      *Store
	handlers   map[string]Handler
	sessions   map[string]bool
	nextSID    int
	authCount  int
	expireNext int
	failStatus []int
	calls      []RecordedCall
}

// NewFakeOdoo starts a fake server that is closed when the test ends.
func NewFakeOdoo(t testing.TB, opts ...FakeOption) *FakeOdoo {
	t.Helper()
	f := &FakeOdoo{
		db:         "odoo",
		login:      "admin",
		password:   "admin",
		uid:        2,
		cookieName: "session_id",
		store:      newStore(),
		handlers:   make(map[string]Handler),
		sessions:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/session/authenticate", f.handleAuthenticate)
	mux.HandleFunc("/web/session/destroy", f.handleDestroy)
	mux.HandleFunc("/web/dataset/call_kw", f.handleCallKW)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server base address.
func (f *FakeOdoo) URL() string { return f.server.URL }

// Database returns the accepted database name.
func (f *FakeOdoo) Database() string { return f.db }

// Seed stores records for model. Each record must carry an integer "id".
func (f *FakeOdoo) Seed(model string, records ...value.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		f.store.put(model, rec)
	}
}

// DefineFields declares field types for model, used by fields_get and to
// store many2one writes as [id, name] pairs.
func (f *FakeOdoo) DefineFields(model string, types map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.fields[model] = types
}

// Record returns a copy of a stored record.
func (f *FakeOdoo) Record(model string, id int64) (value.Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Get(model, id)
}

// Handle overrides or adds a model method.
func (f *FakeOdoo) Handle(model, method string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[model+"."+method] = h
}

// ExpireNext makes the next n call_kw requests fail with a session-expired
// fault, dropping the caller's session each time.
func (f *FakeOdoo) ExpireNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireNext = n
}

// ExpireAll drops every live session.
func (f *FakeOdoo) ExpireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = make(map[string]bool)
}

// FailNext makes the next requests, of any kind, answer with the given
// HTTP statuses in order.
func (f *FakeOdoo) FailNext(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = append(f.failStatus, statuses...)
}

// AuthCount returns the number of successful logins.
func (f *FakeOdoo) AuthCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCount
}

// Calls returns every call_kw request received, including rejected ones.
func (f *FakeOdoo) Calls() []RecordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedCall(nil), f.calls...)
}

// CallsTo returns the calls received for one model method.
func (f *FakeOdoo) CallsTo(model, method string) []RecordedCall {
	var out []RecordedCall
	for _, c := range f.Calls() {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type envelope struct {
	ID     json.RawMessage `json:"id"`
	Params json.RawMessage `json:"params"`
}

func (f *FakeOdoo) readEnvelope(w http.ResponseWriter, r *http.Request) (*envelope, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	if status, ok := f.popFailure(); ok {
		http.Error(w, http.StatusText(status), status)
		return nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &env, true
}

func (f *FakeOdoo) popFailure() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failStatus) == 0 {
		return 0, false
	}
	status := f.failStatus[0]
	f.failStatus = f.failStatus[1:]
	return status, true
}

func (f *FakeOdoo) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	env, ok := f.readEnvelope(w, r)
	if !ok {
		return
	}
	var p struct {
		DB       string `json:"db"`
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(env.Params, &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	if p.DB != f.db || p.Login != f.login || p.Password != f.password {
		f.mu.Unlock()
		writeFault(w, env.ID, FaultAccessDenied)
		return
	}
	sid := f.fixedSID
	if sid == "" {
		f.nextSID++
		sid = "sid-" + strconv.Itoa(f.nextSID)
	}
	f.sessions[sid] = true
	f.authCount++
	result := value.Object{
		"uid":            value.Int(f.uid),
		"username":       value.String(f.login),
		"db":             value.String(f.db),
		"server_version": value.String("18.0"),
	}
	cookieName := f.cookieName
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: sid, Path: "/", HttpOnly: true})
	writeResult(w, env.ID, result)
}

func (f *FakeOdoo) handleDestroy(w http.ResponseWriter, r *http.Request) {
	env, ok := f.readEnvelope(w, r)
	if !ok {
		return
	}
	if c, err := r.Cookie(f.cookieName); err == nil {
		f.mu.Lock()
		delete(f.sessions, c.Value)
		f.mu.Unlock()
	}
	writeResult(w, env.ID, value.Null{})
}

func (f *FakeOdoo) handleCallKW(w http.ResponseWriter, r *http.Request) {
	env, ok := f.readEnvelope(w, r)
	if !ok {
		return
	}
	var p struct {
		Model  string          `json:"model"`
		Method string          `json:"method"`
		Args   json.RawMessage `json:"args"`
		Kwargs json.RawMessage `json:"kwargs"`
	}
	if err := json.Unmarshal(env.Params, &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	args, kwargs, err := decodeArgs(p.Args, p.Kwargs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sid := ""
	if c, err := r.Cookie(f.cookieName); err == nil {
		sid = c.Value
	}

	f.mu.Lock()
	f.calls = append(f.calls, RecordedCall{Model: p.Model, Method: p.Method, Args: args, Kwargs: kwargs, SessionID: sid})
	if !f.sessions[sid] {
		f.mu.Unlock()
		writeFault(w, env.ID, FaultSessionExpired)
		return
	}
	if f.expireNext > 0 {
		f.expireNext--
		delete(f.sessions, sid)
		f.mu.Unlock()
		writeFault(w, env.ID, FaultSessionExpired)
		return
	}
	result, fault := f.dispatch(p.Model, p.Method, args, kwargs)
	f.mu.Unlock()

	if fault != nil {
		writeFault(w, env.ID, fault)
		return
	}
	writeResult(w, env.ID, result)
}

func decodeArgs(rawArgs, rawKwargs json.RawMessage) (value.Array, value.Object, error) {
	args := value.Array{}
	if len(rawArgs) > 0 {
		v, err := value.Decode(rawArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("args: %w", err)
		}
		arr, ok := value.AsArray(v)
		if !ok {
			return nil, nil, fmt.Errorf("args: expected array, got %s", value.KindOf(v))
		}
		args = arr
	}
	kwargs := value.Object{}
	if len(rawKwargs) > 0 {
		v, err := value.Decode(rawKwargs)
		if err != nil {
			return nil, nil, fmt.Errorf("kwargs: %w", err)
		}
		obj, ok := value.AsObject(v)
		if !ok {
			return nil, nil, fmt.Errorf("kwargs: expected object, got %s", value.KindOf(v))
		}
		kwargs = obj
	}
	return args, kwargs, nil
}

// dispatch must be called with f.mu held.
func (f *FakeOdoo) dispatch(model, method string, args value.Array, kwargs value.Object) (value.Value, *Fault) {
	if h, ok := f.handlers[model+"."+method]; ok {
		return h(f.store, args, kwargs)
	}
	switch method {
	case "read":
		return f.read(model, args, kwargs)
	case "search_read":
		return f.searchRead(model, args, kwargs)
	case "write":
		return f.write(model, args)
	case "fields_get":
		return f.fieldsGet(model)
	}
	return nil, UserFault(fmt.Sprintf("The method '%s' does not exist on the model '%s'", method, model))
}

func (f *FakeOdoo) read(model string, args value.Array, kwargs value.Object) (value.Value, *Fault) {
	if len(args) == 0 {
		return nil, UserFault("read() missing ids")
	}
	ids, ok := value.IntSlice(args[0])
	if !ok {
		return nil, UserFault("read() ids must be a list of integers")
	}
	fields := fieldList(args, 1, kwargs)
	out := value.Array{}
	var missing []int64
	for _, id := range ids {
		rec, ok := f.store.Get(model, id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, f.project(rec, fields))
	}
	if len(missing) > 0 {
		return nil, MissingFault(model, missing...)
	}
	return out, nil
}

func (f *FakeOdoo) searchRead(model string, args value.Array, kwargs value.Object) (value.Value, *Fault) {
	var domain value.Array
	if len(args) > 0 {
		domain, _ = value.AsArray(args[0])
	} else if d, ok := kwargs["domain"]; ok {
		domain, _ = value.AsArray(d)
	}
	fields := fieldList(args, 1, kwargs)

	var matched []value.Object
	for _, rec := range f.store.All(model) {
		if matchDomain(rec, domain) {
			matched = append(matched, rec)
		}
	}
	if order, _ := value.AsString(kwargs["order"]); order == "id desc" {
		sort.SliceStable(matched, func(i, j int) bool { return recordID(matched[i]) > recordID(matched[j]) })
	}
	if offset, ok := value.AsInt(kwargs["offset"]); ok && offset > 0 {
		if int(offset) >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit, ok := value.AsInt(kwargs["limit"]); ok && limit > 0 && int(limit) < len(matched) {
		matched = matched[:limit]
	}

	out := value.Array{}
	for _, rec := range matched {
		out = append(out, f.project(rec, fields))
	}
	return out, nil
}

func (f *FakeOdoo) write(model string, args value.Array) (value.Value, *Fault) {
	if len(args) < 2 {
		return nil, UserFault("write() requires ids and values")
	}
	ids, ok := value.IntSlice(args[0])
	if !ok {
		return nil, UserFault("write() ids must be a list of integers")
	}
	vals, ok := value.AsObject(args[1])
	if !ok {
		return nil, UserFault("write() values must be a dictionary")
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := f.store.Get(model, id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, MissingFault(model, missing...)
	}
	for _, id := range ids {
		f.store.Update(model, id, vals)
	}
	return value.Bool(true), nil
}

func (f *FakeOdoo) fieldsGet(model string) (value.Value, *Fault) {
	out := value.Object{}
	for name, typ := range f.store.fields[model] {
		out[name] = value.Object{"type": value.String(typ), "string": value.String(name)}
	}
	return out, nil
}

func (f *FakeOdoo) project(rec value.Object, fields []string) value.Object {
	if f.leakFields || len(fields) == 0 {
		return rec.Clone()
	}
	return rec.Pick(append([]string{"id"}, fields...)...)
}

// fieldList reads the field list from positional args[pos] or kwargs.
func fieldList(args value.Array, pos int, kwargs value.Object) []string {
	var raw value.Value
	if len(args) > pos {
		raw = args[pos]
	} else if v, ok := kwargs["fields"]; ok {
		raw = v
	}
	arr, _ := value.AsArray(raw)
	out := make([]string, 0, len(arr))
	for _, elem := range arr {
		if s, ok := value.AsString(elem); ok {
			out = append(out, s)
		}
	}
	return out
}

// matchDomain evaluates an implicitly AND-ed list of [field, op, value]
// conditions. Supported operators: =, !=, in, not in.
func matchDomain(rec value.Object, domain value.Array) bool {
	for _, term := range domain {
		cond, ok := value.AsArray(term)
		if !ok || len(cond) != 3 {
			continue // "&" and other prefix operators
		}
		field, _ := value.AsString(cond[0])
		op, _ := value.AsString(cond[1])
		got := rec[field]
		if arr, ok := value.AsArray(got); ok && len(arr) == 2 {
			got = arr[0] // many2one compares by id
		}
		switch op {
		case "=":
			if !value.Equal(got, cond[2]) {
				return false
			}
		case "!=":
			if value.Equal(got, cond[2]) {
				return false
			}
		case "in", "not in":
			list, _ := value.AsArray(cond[2])
			found := false
			for _, v := range list {
				if value.Equal(got, v) {
					found = true
					break
				}
			}
			if found != (op == "in") {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result value.Value) {
	if result == nil {
		result = value.Null{}
	}
	data, err := value.Marshal(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeEnvelope(w, id, "result", data)
}

func writeFault(w http.ResponseWriter, id json.RawMessage, fault *Fault) {
	data, _ := json.Marshal(map[string]any{
		"code":    fault.Code,
		"message": fault.Message,
		"data": map[string]any{
			"name":      fault.Name,
			"message":   fault.Detail,
			"debug":     "Traceback (most recent call last):\n" + fault.Name + ": " + fault.Detail,
			"arguments": []string{fault.Detail},
		},
	})
	writeEnvelope(w, id, "error", data)
}

func writeEnvelope(w http.ResponseWriter, id json.RawMessage, member string, payload []byte) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,%q:%s}`, id, member, payload)
}

func joinIDs(ids []int64) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += strconv.FormatInt(id, 10)
	}
	return s
}

func recordID(rec value.Object) int64 {
	id, _ := value.AsInt(rec["id"])
	return id
}
