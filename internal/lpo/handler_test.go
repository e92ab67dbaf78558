package lpo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

var testActors = map[string]shared.Actor{
	"requester": requester,
	"hod":       hod,
	"gm":        gm,
	"accounts":  accounts,
	"store":     storeKeeper,
}

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actor, ok := testActors[req.Header.Get("X-Test-Actor")]; ok {
				req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/lpo", NewHandler(nil, svc).MountRoutes)
	return r
}

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func (c apiClient) do(method, path, actor, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	res := httptest.NewRecorder()
	c.router.ServeHTTP(res, req)
	return res
}

func decodeOrder(t *testing.T, res *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var out orderResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func TestHandlerOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	api := apiClient{t: t, router: newTestRouter(f.svc)}

	res := api.do(http.MethodPost, "/api/lpo/orders", "requester", `{
		"vendor_name": "Gulf Office Supplies",
		"branch_id": 1,
		"department_id": 10,
		"vat_percent": "5",
		"lines": [{"description": "Laptop", "uom": "EA", "quantity": "10", "unit_price": "15", "tracking": "SERIALIZED"}]
	}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeOrder(t, res)
	assert.Equal(t, StatusDraft, created.Status)
	assert.Equal(t, "157.5", created.Total.String())
	assert.ElementsMatch(t, []Action{ActionEdit, ActionSubmit, ActionCancel}, created.AllowedActions)
	base := "/api/lpo/orders/" + strconv.FormatInt(created.ID, 10)
	assert.Equal(t, base, res.Header().Get("Location"))

	res = api.do(http.MethodPost, base+"/submit", "requester", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, StatusPendingDept, decodeOrder(t, res).Status)

	res = api.do(http.MethodGet, "/api/lpo/pending", "hod", "")
	require.Equal(t, http.StatusOK, res.Code)
	var pending []orderResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	for _, step := range []struct{ actor, tier string }{{"hod", "DEPT"}, {"gm", "GM"}, {"accounts", "ACC"}} {
		res = api.do(http.MethodPost, base+"/approve", step.actor, `{"tier":"`+step.tier+`"}`)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	}
	res = api.do(http.MethodPost, base+"/send", "requester", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	sent := decodeOrder(t, res)
	assert.Equal(t, StatusSentToVendor, sent.Status)
	require.Len(t, sent.Lines, 1)

	lineURL := "/api/lpo/lines/" + strconv.FormatInt(sent.Lines[0].ID, 10) + "/receipts"
	res = api.do(http.MethodPost, lineURL, "store", `{"quantity":"2","condition":"NEW","serial_numbers":["A1","A2"],"received_on":"2026-04-08"}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var receipt receiptResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &receipt))
	assert.Equal(t, LinePartial, receipt.LineStatus)
	assert.Len(t, receipt.AssetIDs, 2)
	assert.Equal(t, "2026-04-08", receipt.ReceivedOn)

	res = api.do(http.MethodPost, lineURL, "store", `{"quantity":"9","condition":"NEW","serial_numbers":["B1","B2","B3","B4","B5","B6","B7","B8","B9"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), `"line_id"`)

	res = api.do(http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, res.Code)
	got := decodeOrder(t, res)
	assert.Equal(t, StatusPartiallyReceived, got.Status)
	assert.Equal(t, "8", got.Lines[0].QuantityPending.String())
	assert.Equal(t, strconv.Quote(strconv.FormatInt(got.Version, 10)), res.Header().Get("ETag"))

	res = api.do(http.MethodGet, base+"/receipts", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	var receipts []receiptResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &receipts))
	assert.Len(t, receipts, 1)
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture(t)
	api := apiClient{t: t, router: newTestRouter(f.svc)}
	order := f.draft(t, "0", line("Chair", "EA", "1", "50", ""))
	base := "/api/lpo/orders/" + strconv.FormatInt(order.ID, 10)

	cases := []struct {
		name   string
		method string
		path   string
		actor  string
		body   string
		status int
		expect string
	}{
		{"no actor", http.MethodPost, base + "/submit", "", "", http.StatusUnauthorized, ""},
		{"bad id", http.MethodGet, "/api/lpo/orders/abc", "", "", http.StatusBadRequest, ""},
		{"missing order", http.MethodGet, "/api/lpo/orders/999", "", "", http.StatusNotFound, ""},
		{"not requester", http.MethodPost, base + "/submit", "hod", "", http.StatusForbidden, `"order_id"`},
		{"wrong state", http.MethodPost, base + "/approve", "hod", `{"tier":"DEPT"}`, http.StatusConflict, `"tier":"DEPT"`},
		{"bad tier", http.MethodPost, base + "/approve", "hod", `{"tier":"CEO"}`, http.StatusBadRequest, `"tier":"oneof"`},
		{"unknown field", http.MethodPost, base + "/reject", "hod", `{"tier":"DEPT","why":"x"}`, http.StatusBadRequest, ""},
		{"invoice ref required", http.MethodPost, base + "/invoice", "accounts", `{}`, http.StatusBadRequest, `"invoice_ref":"required"`},
		{"bad received date", http.MethodPost, "/api/lpo/lines/1/receipts", "store", `{"quantity":"1","condition":"NEW","received_on":"08/04/2026"}`, http.StatusBadRequest, `"received_on":"datetime"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := api.do(tc.method, tc.path, tc.actor, tc.body)
			assert.Equal(t, tc.status, res.Code, res.Body.String())
			if tc.status >= 400 {
				assert.Contains(t, res.Header().Get("Content-Type"), "application/problem+json")
			}
			if tc.expect != "" {
				assert.Contains(t, res.Body.String(), tc.expect)
			}
		})
	}
}

func TestHandlerEditAndDelivery(t *testing.T) {
	f := newFixture(t)
	api := apiClient{t: t, router: newTestRouter(f.svc)}
	order := f.draft(t, "0", line("Cement", "BAG", "10", "20", ""), line("Sand", "KG", "50", "1", ""))
	base := "/api/lpo/orders/" + strconv.FormatInt(order.ID, 10)

	res := api.do(http.MethodPatch, base, "requester", `{"remove_lines":[`+strconv.FormatInt(order.Lines[1].ID, 10)+`],"notes":"urgent"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	edited := decodeOrder(t, res)
	require.Len(t, edited.Lines, 1)
	assert.Equal(t, "200", edited.Total.String())
	assert.Equal(t, "urgent", edited.Notes)

	sent := f.sent(t, order)
	res = api.do(http.MethodPost, base+"/deliveries", "store", `{
		"delivery_note_ref": "DN-1",
		"lines": [{"line_id": `+strconv.FormatInt(sent.Lines[0].ID, 10)+`, "quantity": "10", "condition": "GOOD"}]
	}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var results []receiptResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, LineFull, results[0].LineStatus)

	res = api.do(http.MethodPost, base+"/deliveries", "store", `{"lines": []}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	f := newFixture(t)
	api := apiClient{t: t, router: newTestRouter(f.svc)}
	sent := f.sent(t, f.draft(t, "0", line("Cement", "BAG", "10", "20", "")))
	path := "/api/lpo/lines/" + strconv.FormatInt(sent.Lines[0].ID, 10) + "/receipts"

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"quantity":"1","condition":"GOOD"}`))
		req.Header.Set("X-Test-Actor", "store")
		req.Header.Set(IdempotencyHeader, "grn-77")
		res := httptest.NewRecorder()
		api.router.ServeHTTP(res, req)
		return res
	}
	require.Equal(t, http.StatusCreated, send().Code)
	assert.Equal(t, http.StatusConflict, send().Code)
}

func TestHandlerHistory(t *testing.T) {
	f := newFixture(t)
	api := apiClient{t: t, router: newTestRouter(f.svc)}
	order := f.draft(t, "0", line("Toner", "EA", "2", "30", TrackingConsumable))
	base := "/api/lpo/orders/" + strconv.FormatInt(order.ID, 10)

	res := api.do(http.MethodPost, base+"/submit", "requester", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = api.do(http.MethodPost, base+"/approve", "hod", `{"tier":"DEPT","comment":"fine"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = api.do(http.MethodGet, base+"/history", "requester", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var hist historyResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &hist))
	require.Len(t, hist.Approvals, 2)
	assert.Equal(t, "APPROVE", hist.Approvals[1].Action)
	assert.Equal(t, "DEPT", hist.Approvals[1].Tier)
	assert.Equal(t, int64(2), hist.Approvals[1].ActorID)
	require.Len(t, hist.Audit, 3)
	assert.Equal(t, "LPO_APPROVE", hist.Audit[2].Action)
	assert.Equal(t, "PENDING_ACC_APPROVAL", hist.Audit[2].Meta["status"])

	res = api.do(http.MethodGet, "/api/lpo/orders/404/history", "requester", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}
