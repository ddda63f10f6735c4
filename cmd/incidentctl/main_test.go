package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type seen struct {
	method string
	path   string
	body   string
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *[]seen) {
	t.Helper()
	var calls []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, seen{method: r.Method, path: r.URL.EscapedPath(), body: string(b)})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api", srv.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSessionStart(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusCreated, `{"logId":"abc","status":"active"}`)
	out, err := execute(t, srv, "session", "start", "--user", "u1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(*calls) != 1 || (*calls)[0].method != "POST" || (*calls)[0].path != "/api/session/start" {
		t.Fatalf("unexpected calls: %+v", *calls)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte((*calls)[0].body), &body); err != nil || body["userId"] != "u1" {
		t.Fatalf("unexpected body %q", (*calls)[0].body)
	}
	if !strings.Contains(out, `"logId": "abc"`) {
		t.Fatalf("output not indented JSON: %s", out)
	}
}

func TestIncidentSubcommandsHitIDRoutes(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)
	for _, args := range [][]string{
		{"incidents", "get", "id-1"},
		{"incidents", "notify", "id-1"},
		{"incidents", "share", "id-1"},
		{"incidents", "export", "id-1"},
		{"incidents", "update", "id-1", "--complete"},
	} {
		if _, err := execute(t, srv, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	want := []string{
		"GET /api/incidents/id-1",
		"POST /api/incidents/id-1/notify",
		"POST /api/incidents/id-1/share",
		"POST /api/incidents/id-1/export",
		"PATCH /api/incidents/id-1",
	}
	for i, w := range want {
		if got := (*calls)[i].method + " " + (*calls)[i].path; got != w {
			t.Fatalf("call %d = %s, want %s", i, got, w)
		}
	}
	if !strings.Contains((*calls)[4].body, `"status":"completed"`) {
		t.Fatalf("update body %q", (*calls)[4].body)
	}
}

func TestContactRemoveEscapesAddress(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)
	if _, err := execute(t, srv, "contacts", "remove", "a b@example.com"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := (*calls)[0].path; got != "/api/contacts/a%20b@example.com" {
		t.Fatalf("path = %s", got)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, `{"error":"Conflict","code":409,"message":"recording session already active"}`)
	_, err := execute(t, srv, "session", "start")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 error, got %v", err)
	}
}

func TestUpdateRequiresAField(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)
	if _, err := execute(t, srv, "incidents", "update", "id-1"); err == nil {
		t.Fatalf("expected error")
	}
	if len(*calls) != 0 {
		t.Fatalf("no request expected")
	}
}

func TestSettingsExportThenImport(t *testing.T) {
	backup := `{"exportedAt":"2026-10-01T00:00:00Z","state":{"user":{"state":"NY"}},"incidents":[]}`
	srv, calls := fakeAPI(t, http.StatusOK, backup)
	file := filepath.Join(t.TempDir(), "backup.json")

	out, err := execute(t, srv, "settings", "export", "--out", file)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, file) {
		t.Fatalf("unexpected output %q", out)
	}
	saved, err := os.ReadFile(file)
	if err != nil || string(saved) != backup {
		t.Fatalf("backup file %q, err %v", saved, err)
	}

	if _, err := execute(t, srv, "settings", "import", file); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("expected 2 calls, got %+v", *calls)
	}
	if c := (*calls)[0]; c.method != "GET" || c.path != "/api/data/export" {
		t.Fatalf("unexpected export call %+v", c)
	}
	imp := (*calls)[1]
	if imp.method != "POST" || imp.path != "/api/data/import" {
		t.Fatalf("unexpected import call %+v", imp)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(imp.body), &sent); err != nil || sent["state"] == nil {
		t.Fatalf("import body %q", imp.body)
	}
}

func TestSettingsImportRejectsNonJSON(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, `{}`)
	file := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(file, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, srv, "settings", "import", file); err == nil {
		t.Fatalf("expected error")
	}
	if len(*calls) != 0 {
		t.Fatalf("nothing should be sent, got %+v", *calls)
	}
}
