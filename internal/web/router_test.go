package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeGenerator())

	status, body := getJSON(t, ts.URL+"/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["environment"] != "test" {
		t.Errorf("environment = %v, want test", body["environment"])
	}
}

func TestActiveAdventureEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeGenerator())

	status, _ := getJSON(t, ts.URL+"/api/v1/adventure/active")
	if status != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d, want 400", status)
	}

	status, body := getJSON(t, ts.URL+"/api/v1/adventure/active?user_id=u-nobody")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["active"] != false {
		t.Errorf("active = %v, want false", body["active"])
	}

	conn := dialWS(t, ts)
	sendJSON(t, conn, startMsg("u-alice", "astronomy"))
	readUntil(t, conn, "choices")

	status, body = getJSON(t, ts.URL+"/api/v1/adventure/active?user_id=u-alice")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["active"] != true {
		t.Fatalf("active = %v, want true", body["active"])
	}
	if body["topic"] != "astronomy" {
		t.Errorf("topic = %v", body["topic"])
	}
	if body["display_chapter_number"].(float64) != 1 {
		t.Errorf("display_chapter_number = %v, want 1", body["display_chapter_number"])
	}
}

func TestAbandonEndpoint(t *testing.T) {
	_, store, ts := newTestServer(t, newFakeGenerator())

	conn := dialWS(t, ts)
	sendJSON(t, conn, startMsg("u-bob", "astronomy"))
	frames, _ := readUntil(t, conn, "choices")
	var adventureID string
	for _, f := range frames {
		if f.typ() == "adventure_created" {
			adventureID = f["adventure_id"].(string)
		}
	}

	resp, err := http.Post(fmt.Sprintf("%s/api/v1/adventure/%s/abandon", ts.URL, adventureID), "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("abandon status = %d, want 200", resp.StatusCode)
	}
	if store.ActiveCount("u-bob") != 0 {
		t.Error("adventure still active after abandon")
	}

	resp, err = http.Post(ts.URL+"/api/v1/adventure/missing/abandon", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("abandon missing status = %d, want 404", resp.StatusCode)
	}
}

func TestSummaryEndpointIncomplete(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeGenerator())

	conn := dialWS(t, ts)
	sendJSON(t, conn, startMsg("u-carol", "astronomy"))
	frames, _ := readUntil(t, conn, "choices")
	var adventureID string
	for _, f := range frames {
		if f.typ() == "adventure_created" {
			adventureID = f["adventure_id"].(string)
		}
	}

	status, _ := getJSON(t, fmt.Sprintf("%s/api/v1/adventure/%s/summary", ts.URL, adventureID))
	if status != http.StatusConflict {
		t.Errorf("incomplete summary status = %d, want 409", status)
	}

	status, _ = getJSON(t, ts.URL+"/api/v1/adventure/missing/summary")
	if status != http.StatusNotFound {
		t.Errorf("missing summary status = %d, want 404", status)
	}
}
