package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sitequote/sitequote/internal/entity"
)

func TestEndpointFor(t *testing.T) {
	cases := []struct {
		kind entity.Kind
		want string
		ok   bool
	}{
		{entity.KindCustomer, EndpointCustomers, true},
		{entity.KindQuote, EndpointQuotes, true},
		{entity.KindFloorPlan, EndpointFloorPlans, true},
		{entity.Kind("invoice"), "", false},
	}
	for _, tc := range cases {
		got, ok := EndpointFor(tc.kind)
		if got != tc.want || ok != tc.ok {
			t.Errorf("EndpointFor(%s) = %q, %v; want %q, %v", tc.kind, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCreate(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != EndpointCustomers {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "cus-42", "name": "Acme Co"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", time.Second)
	id, err := c.Create(context.Background(), EndpointCustomers, []byte(`{"localId":"l1","name":"Acme Co"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "cus-42" {
		t.Errorf("id = %s, want cus-42", id)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["localId"] != "l1" {
		t.Errorf("body localId = %v", gotBody["localId"])
	}
}

func TestCreateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, err := c.Create(context.Background(), EndpointCustomers, []byte(`{}`))

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d", apiErr.Status)
	}
}

func TestUpdateTargetsServerID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"id": "qt-7"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	id, err := c.Update(context.Background(), EndpointQuotes, "qt-7", []byte(`{"status":"sent"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if gotPath != "PATCH /api/quotes/qt-7" {
		t.Errorf("request = %s", gotPath)
	}
	if id != "qt-7" {
		t.Errorf("id = %s", id)
	}
}

func TestDeleteTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	if err := c.Delete(context.Background(), EndpointCustomers, "cus-1"); err != nil {
		t.Errorf("Delete on 404 = %v, want nil", err)
	}
}

func TestListCustomers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Customer{
			{ID: "cus-1", Name: "Acme Co"},
			{ID: "cus-2", Name: "Bolt Ltd"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	customers, err := c.ListCustomers(context.Background())
	if err != nil {
		t.Fatalf("ListCustomers: %v", err)
	}
	if len(customers) != 2 || customers[0].ID != "cus-1" || customers[1].Name != "Bolt Ltd" {
		t.Errorf("got %+v", customers)
	}
}

func TestUploadFloorPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart: %v", err)
		}
		var meta entity.FloorPlan
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			t.Errorf("parsing metadata: %v", err)
		}
		if meta.LocalID != "p1" {
			t.Errorf("metadata localId = %s", meta.LocalID)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "plan-bytes" {
			t.Errorf("file data = %q", data)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "fp-3"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	plan := entity.FloorPlan{
		Meta:     entity.Meta{LocalID: "p1"},
		QuoteID:  "q1",
		Name:     "Kitchen",
		FileName: "plan_p1.pdf",
	}
	id, err := c.UploadFloorPlan(context.Background(), plan, []byte("plan-bytes"))
	if err != nil {
		t.Fatalf("UploadFloorPlan: %v", err)
	}
	if id != "fp-3" {
		t.Errorf("id = %s", id)
	}
}
