package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalSetGet(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := st.Set("annour_ivry", []byte("payload")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := st.Get("annour_ivry")
	if !ok {
		t.Fatal("stored value not found")
	}
	if string(got) != "payload" {
		t.Errorf("value mismatch: got %q, want %q", got, "payload")
	}

	if _, ok := st.Get("missing"); ok {
		t.Error("missing key reported present")
	}
}

func TestLocalJSONRoundTrip(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	want := record{Name: "Mosquée Annour", Count: 12}
	if err := st.SetJSON("annour_ivry", want); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got record
	if !st.GetJSON("annour_ivry", &got) {
		t.Fatal("GetJSON found nothing")
	}
	if got != want {
		t.Errorf("record mismatch: got %+v, want %+v", got, want)
	}
}

func TestLocalSetICS(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	feed := []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	if err := st.SetICS("annour_ivry", feed); err != nil {
		t.Fatalf("SetICS failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "annour_ivry.ics"))
	if err != nil {
		t.Fatalf("feed not on disk: %v", err)
	}
	if string(got) != string(feed) {
		t.Errorf("feed mismatch: got %q", got)
	}

	back, ok := st.GetICS("annour_ivry")
	if !ok || string(back) != string(feed) {
		t.Errorf("GetICS mismatch: got (%q, %v)", back, ok)
	}
	if _, ok := st.GetICS("missing"); ok {
		t.Error("missing feed reported present")
	}
}

func TestLocalFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := st.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := st.SetICS("a", []byte("2")); err != nil {
		t.Fatalf("SetICS failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %q", e.Name())
		}
		names = append(names, e.Name())
	}
	if len(names) != 2 {
		t.Errorf("entries = %v, want a.json and a.ics", names)
	}
}

func TestLocalOverwrite(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := st.Set("k", []byte("old")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := st.Set("k", []byte("new")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := st.Get("k")
	if !ok || string(got) != "new" {
		t.Errorf("value = %q, want the replacement", got)
	}
}

func TestLocalGetJSONRejectsGarbage(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	if err := st.Set("bad", []byte("{not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var v map[string]interface{}
	if st.GetJSON("bad", &v) {
		t.Error("GetJSON accepted a corrupt artifact")
	}
}
