//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type productView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

func TestCatalog_AdminWritesPublicReads(t *testing.T) {
	resp := doPost(t, "/api/products", map[string]any{"name": "Lamp", "price": 10})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/categories", map[string]any{
		"name":        "Lighting",
		"description": "Lamps and bulbs",
	}, adminToken)
	expectStatus(t, resp, http.StatusCreated)
	cat := decodeJSON[struct {
		ID string `json:"id"`
	}](t, resp)
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/categories/"+cat.ID+"/subcategories", map[string]any{
		"name": "Desk lamps",
	}, adminToken)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doGet(t, "/api/categories/" + cat.ID + "/subcategories")
	expectStatus(t, resp, http.StatusOK)
	subs := decodeJSON[[]struct {
		Name string `json:"name"`
	}](t, resp)
	resp.Body.Close()
	if len(subs) != 1 || subs[0].Name != "Desk lamps" {
		t.Errorf("subcategories: got %+v", subs)
	}

	resp = doRequest(t, http.MethodPost, "/api/products", map[string]any{
		"name":  "Brass lamp",
		"price": 49.5,
		"image": "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=",
	}, adminToken)
	expectStatus(t, resp, http.StatusCreated)
	p := decodeJSON[productView](t, resp)
	resp.Body.Close()
	if p.Image == "" {
		t.Fatal("expected stored image URL")
	}

	resp = doGet(t, "/api/products/"+p.ID)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[productView](t, resp); got.Price != 49.5 {
		t.Errorf("price: got %v, want 49.5", got.Price)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodDelete, "/api/categories/"+cat.ID, nil, adminToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = doGet(t, "/api/categories/"+cat.ID)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}
