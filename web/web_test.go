package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bucketset/db"
	"bucketset/store"
	"bucketset/web"
)

func createTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	docs, closeFunc, err := db.NewMemoryStore()
	if err != nil {
		t.Fatalf("Could not create the backing store: %v", err)
	}
	t.Cleanup(func() { closeFunc() })

	srv := web.NewServer(store.New(docs))

	mux := http.NewServeMux()
	mux.HandleFunc("/get", srv.GetHandler)
	mux.HandleFunc("/union", srv.UnionHandler)
	mux.HandleFunc("/batch", srv.BatchHandler)
	mux.HandleFunc("/clean", srv.CleanHandler)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func postBatch(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(ts.URL+"/batch", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("Could not post the batch: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func getValues(t *testing.T, ts *httptest.Server, path string) []string {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("Could not get %q: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status for %q: %d", path, resp.StatusCode)
	}

	var body struct {
		Values []string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Could not decode the response for %q: %v", path, err)
	}

	return body.Values
}

func TestBatchThenGet(t *testing.T) {
	ts := createTestServer(t)

	resp := postBatch(t, ts, `{"ops":[
		{"op":"add","bucket":"roles","key":"admin","values":["read","write"]},
		{"op":"add","bucket":"roles","key":"guest","values":["list"]},
		{"op":"remove","bucket":"roles","key":"admin","values":["write"]}
	]}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Unexpected batch status: %d", resp.StatusCode)
	}

	got := getValues(t, ts, "/get?bucket=roles&key=admin")
	if len(got) != 1 || got[0] != "read" {
		t.Errorf(`Unexpected values for "admin": %v`, got)
	}
}

func TestUnionEndpoint(t *testing.T) {
	ts := createTestServer(t)

	postBatch(t, ts, `{"ops":[
		{"op":"add","bucket":"roles","key":"admin","values":["read","write"]},
		{"op":"add","bucket":"roles","key":"guest","values":["list","read"]}
	]}`)

	q := url.Values{"bucket": {"roles"}, "key": {"admin", "guest"}}
	got := getValues(t, ts, "/union?"+q.Encode())

	want := "list,read,write"
	if strings.Join(got, ",") != want {
		t.Errorf("Unexpected union: got %v, want %v", got, want)
	}
}

func TestBatchDelObservesAdd(t *testing.T) {
	ts := createTestServer(t)

	resp := postBatch(t, ts, `{"ops":[
		{"op":"add","bucket":"roles","key":"admin","values":["x"]},
		{"op":"del","bucket":"roles","keys":["admin"]}
	]}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Unexpected batch status: %d", resp.StatusCode)
	}

	if got := getValues(t, ts, "/get?bucket=roles&key=admin"); len(got) != 0 {
		t.Errorf("del did not observe the preceding add: %v", got)
	}
}

func TestBatchValidation(t *testing.T) {
	ts := createTestServer(t)

	cases := map[string]string{
		"reserved key": `{"ops":[{"op":"add","bucket":"roles","key":"key","values":["x"]}]}`,
		"unknown op":   `{"ops":[{"op":"merge","bucket":"roles","key":"k","values":["x"]}]}`,
		"no values":    `{"ops":[{"op":"add","bucket":"roles","key":"k"}]}`,
	}

	for name, body := range cases {
		resp := postBatch(t, ts, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want %d", name, resp.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestCleanEndpoint(t *testing.T) {
	ts := createTestServer(t)

	postBatch(t, ts, `{"ops":[{"op":"add","bucket":"roles","key":"admin","values":["read"]}]}`)

	resp, err := http.Post(ts.URL+"/clean", "application/json", nil)
	if err != nil {
		t.Fatalf("Could not post clean: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Unexpected clean status: %d", resp.StatusCode)
	}

	if got := getValues(t, ts, "/get?bucket=roles&key=admin"); len(got) != 0 {
		t.Errorf("Clean left values behind: %v", got)
	}
}

func TestCleanRequiresPost(t *testing.T) {
	ts := createTestServer(t)

	resp, err := http.Get(ts.URL + "/clean")
	if err != nil {
		t.Fatalf("Could not get clean: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Unexpected status: got %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestGetEmptyKey(t *testing.T) {
	ts := createTestServer(t)

	got := getValues(t, ts, fmt.Sprintf("/get?bucket=%s&key=%s", "roles", "nobody"))
	if len(got) != 0 {
		t.Errorf("Missing key yielded values: %v", got)
	}
}
