package mockapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func postJSON(t *testing.T, url string, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rec map[string]any
	json.NewDecoder(resp.Body).Decode(&rec)
	return resp.StatusCode, rec
}

func TestHealth(t *testing.T) {
	_, url := startServer(t)
	resp, err := http.Get(url + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCreateAssignsID(t *testing.T) {
	_, url := startServer(t)

	status, rec := postJSON(t, url+"/api/customers", `{"localId":"l1","name":"Acme Co"}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d", status)
	}
	if rec["id"] == "" || rec["id"] == nil {
		t.Error("no id assigned")
	}
	if rec["name"] != "Acme Co" {
		t.Errorf("name = %v", rec["name"])
	}
}

func TestCreateIdempotentByLocalID(t *testing.T) {
	s, url := startServer(t)

	_, first := postJSON(t, url+"/api/customers", `{"localId":"l1","name":"Acme Co"}`)
	_, second := postJSON(t, url+"/api/customers", `{"localId":"l1","name":"Acme Co"}`)

	if first["id"] != second["id"] {
		t.Errorf("retried create minted a new id: %v vs %v", first["id"], second["id"])
	}
	if len(s.Customers()) != 1 {
		t.Errorf("stored %d customers, want 1", len(s.Customers()))
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s, url := startServer(t)

	_, rec := postJSON(t, url+"/api/quotes", `{"localId":"q1","trade":"hvac","status":"draft"}`)
	id := rec["id"].(string)

	req, _ := http.NewRequest(http.MethodPatch, url+"/api/quotes/"+id, strings.NewReader(`{"status":"sent","id":"hack"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var updated map[string]any
	json.NewDecoder(resp.Body).Decode(&updated)
	resp.Body.Close()
	if updated["status"] != "sent" {
		t.Errorf("status = %v", updated["status"])
	}
	if updated["id"] != id {
		t.Errorf("patch overwrote the id: %v", updated["id"])
	}

	req, _ = http.NewRequest(http.MethodDelete, url+"/api/quotes/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if len(s.Quotes()) != 0 {
		t.Errorf("quote still stored after delete")
	}
}

func TestUpdateUnknownIDReturns404(t *testing.T) {
	_, url := startServer(t)

	req, _ := http.NewRequest(http.MethodPatch, url+"/api/customers/ghost", strings.NewReader(`{}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestListReturnsCreatedRecords(t *testing.T) {
	_, url := startServer(t)

	postJSON(t, url+"/api/customers", `{"localId":"a","name":"A"}`)
	postJSON(t, url+"/api/customers", `{"localId":"b","name":"B"}`)

	resp, err := http.Get(url + "/api/customers")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []map[string]any
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 2 {
		t.Errorf("list = %v", list)
	}
}

func TestFloorPlanUpload(t *testing.T) {
	s, url := startServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("metadata", `{"localId":"p1","name":"Kitchen"}`)
	part, _ := w.CreateFormFile("file", "plan.pdf")
	part.Write([]byte("pdf-bytes"))
	w.Close()

	resp, err := http.Post(url+"/api/floorplans", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rec map[string]any
	json.NewDecoder(resp.Body).Decode(&rec)
	if rec["id"] == nil {
		t.Error("no id assigned")
	}
	if rec["receivedBytes"] != float64(len("pdf-bytes")) {
		t.Errorf("receivedBytes = %v", rec["receivedBytes"])
	}
	if len(s.FloorPlans()) != 1 {
		t.Errorf("stored %d plans", len(s.FloorPlans()))
	}
}

func TestFloorPlanUploadMissingFilePart(t *testing.T) {
	_, url := startServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("metadata", `{"localId":"p1"}`)
	w.Close()

	resp, err := http.Post(url+"/api/floorplans", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
