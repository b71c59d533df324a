package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"concierge/api/internal/tree"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service, *fakeClock) {
	t.Helper()
	svc, _, clock := newTestService(t)
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(srv.Close)
	return srv, svc, clock
}

func doJSON(t *testing.T, method, url string, body string) (int, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp.StatusCode, payload
}

func createHotelHTTP(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	status, payload := doJSON(t, http.MethodPost, srv.URL+"/api/hotels", fmt.Sprintf(`{"name":%q}`, name))
	if status != http.StatusCreated {
		t.Fatalf("create hotel status = %d (%v)", status, payload)
	}
	treePayload := payload["tree"].(map[string]any)
	return treePayload["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/health", "")
	if status != http.StatusOK || payload["ok"] != true {
		t.Errorf("health = %d %v", status, payload)
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/ready", "")
	if status != http.StatusOK || payload["status"] != "ready" {
		t.Errorf("ready = %d %v", status, payload)
	}
}

func TestCreateListAndGetHotel(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel Meridian")

	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hotels", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	hotels := payload["hotels"].([]any)
	if len(hotels) != 1 {
		t.Fatalf("hotels = %v", hotels)
	}

	status, payload = doJSON(t, http.MethodGet, srv.URL+"/api/hotels/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	treePayload := payload["tree"].(map[string]any)
	if treePayload["name"] != "Hotel Meridian" {
		t.Errorf("tree = %v", treePayload)
	}
	if payload["saveState"] == nil {
		t.Error("response missing saveState")
	}
}

func TestCreateHotelRequiresName(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, payload := doJSON(t, http.MethodPost, srv.URL+"/api/hotels", `{"name":"  "}`)
	if status != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Errorf("status = %d payload = %v", status, payload)
	}
}

func TestUnknownHotelIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hotels/ghost", "")
	if status != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Errorf("status = %d payload = %v", status, payload)
	}
}

func TestNodeLifecycleOverHTTP(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel")

	// Insert a category under the root.
	status, payload := doJSON(t, http.MethodPost, srv.URL+"/api/hotels/"+id+"/nodes",
		fmt.Sprintf(`{"parentId":%q,"node":{"kind":"category","name":"Amenities"}}`, id))
	if status != http.StatusOK {
		t.Fatalf("insert status = %d (%v)", status, payload)
	}
	treePayload := payload["tree"].(map[string]any)
	children := treePayload["children"].([]any)
	catID := children[0].(map[string]any)["id"].(string)

	// Update its value.
	status, payload = doJSON(t, http.MethodPut, srv.URL+"/api/hotels/"+id+"/nodes/"+catID,
		`{"description":"What the hotel offers"}`)
	if status != http.StatusOK {
		t.Fatalf("update status = %d (%v)", status, payload)
	}

	current, err := svc.LoadTree(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if current.Children[0].Description != "What the hotel offers" {
		t.Errorf("update not applied: %+v", current.Children[0])
	}

	// Delete it.
	status, payload = doJSON(t, http.MethodDelete, srv.URL+"/api/hotels/"+id+"/nodes/"+catID, "")
	if status != http.StatusOK {
		t.Fatalf("delete status = %d (%v)", status, payload)
	}
	treePayload = payload["tree"].(map[string]any)
	if treePayload["children"] != nil {
		t.Errorf("children after delete = %v", treePayload["children"])
	}
}

func TestMoveValidatesPosition(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel")

	status, payload := doJSON(t, http.MethodPost, srv.URL+"/api/hotels/"+id+"/nodes/x/move",
		`{"targetId":"y","position":"sideways"}`)
	if status != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Errorf("status = %d payload = %v", status, payload)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel")

	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hotels/"+id+"/stats", "")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if payload["totalNodes"].(float64) != 1 || payload["depth"].(float64) != 1 {
		t.Errorf("stats = %v", payload)
	}
}

func TestSaveStatusEndpoint(t *testing.T) {
	srv, _, clock := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel")

	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hotels/"+id+"/save-status", "")
	if status != http.StatusOK || payload["state"] != "saved" {
		t.Errorf("save-status = %d %v", status, payload)
	}
	clock.Advance(testInterval)
	_, payload = doJSON(t, http.MethodGet, srv.URL+"/api/hotels/"+id+"/save-status", "")
	if payload["state"] != "idle" {
		t.Errorf("settled state = %v", payload["state"])
	}
}

func TestSearchWithoutBackendIsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/search?q=pool", "")
	if status != http.StatusOK {
		t.Fatalf("search status = %d", status)
	}
	if results := payload["results"].([]any); len(results) != 0 {
		t.Errorf("results = %v", results)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel Meridian")

	resp, err := http.Get(srv.URL + "/api/hotels/" + id + "/export?format=text")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "Hotel-Meridian.txt") {
		t.Errorf("disposition = %q", got)
	}
}

func TestFilterQueryParam(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	id := createHotelHTTP(t, srv, "Hotel")
	if _, err := svc.InsertNode(context.Background(), id, id, &tree.Node{Kind: "field", Name: "Wifi", Value: "Free"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.InsertNode(context.Background(), id, id, &tree.Node{Kind: "field", Name: "Parking"}); err != nil {
		t.Fatal(err)
	}

	status, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hotels/"+id+"?q=wifi", "")
	if status != http.StatusOK {
		t.Fatalf("filter status = %d", status)
	}
	treePayload := payload["tree"].(map[string]any)
	children := treePayload["children"].([]any)
	if len(children) != 1 || children[0].(map[string]any)["name"] != "Wifi" {
		t.Errorf("filtered children = %v", children)
	}
}
