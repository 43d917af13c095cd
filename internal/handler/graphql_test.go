package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/wangpzi/apoolo-workers/internal/config"
)

const fullQuery = `{ pokemon(id: 1) { id name height weight sprites {
	front_default front_shiny front_female front_shiny_female
	back_default back_shiny back_female back_shiny_female } } }`

type gqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

type gqlResult struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type pokemonData struct {
	Pokemon *struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		Height  int               `json:"height"`
		Weight  int               `json:"weight"`
		Sprites map[string]string `json:"sprites"`
	} `json:"pokemon"`
}

func postQuery(t *testing.T, e *echo.Echo, query string) (int, gqlResult) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := serve(e, http.MethodPost, "/graphql", echo.MIMEApplicationJSON, string(payload))
	assertCORS(t, rec)

	var res gqlResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return rec.Code, res
}

func TestGraphQL_HappyPath(t *testing.T) {
	up := newFakeUpstreams()
	e := newGateway(t, up, nil)

	status, res := postQuery(t, e, fullQuery)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}

	var data pokemonData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	p := data.Pokemon
	if p == nil {
		t.Fatal("pokemon is null")
	}
	if p.ID != "1" || p.Name != "bulbasaur" || p.Height != 7 || p.Weight != 69 {
		t.Errorf("pokemon = %+v", p)
	}
	for _, field := range []string{
		"front_default", "front_shiny", "front_female", "front_shiny_female",
		"back_default", "back_shiny", "back_female", "back_shiny_female",
	} {
		if p.Sprites[field] == "" {
			t.Errorf("sprites.%s is empty", field)
		}
	}
}

func TestGraphQL_EdgeCacheServesRepeatLookups(t *testing.T) {
	up := newFakeUpstreams()
	e := newGateway(t, up, nil)

	for range 3 {
		if status, res := postQuery(t, e, `{ pokemon(id: 1) { name } }`); status != http.StatusOK || len(res.Errors) != 0 {
			t.Fatalf("status = %d errors = %+v", status, res.Errors)
		}
	}
	if got := up.pokeHits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestGraphQL_MissingRequiredField(t *testing.T) {
	up := newFakeUpstreams()
	up.pokeBody = `{"id":1,"height":7,"weight":69,"sprites":{}}`
	e := newGateway(t, up, nil)

	status, res := postQuery(t, e, `{ pokemon(id: 1) { id name } }`)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v, want one", res.Errors)
	}
	if got := res.Errors[0].Path; len(got) != 2 || got[0] != "pokemon" || got[1] != "name" {
		t.Errorf("error path = %v, want [pokemon name]", got)
	}
	if string(res.Data) != `{"pokemon":null}` {
		t.Errorf("data = %s, want %s", res.Data, `{"pokemon":null}`)
	}
}

func TestGraphQL_UpstreamFailure(t *testing.T) {
	up := newFakeUpstreams()
	up.pokeStatus = http.StatusInternalServerError
	up.pokeBody = "upstream exploded"
	e := newGateway(t, up, nil)

	status, res := postQuery(t, e, `{ pokemon(id: 1) { name } }`)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Message, "500") {
		t.Fatalf("errors = %+v, want one mentioning 500", res.Errors)
	}
	if got := res.Errors[0].Path; len(got) != 1 || got[0] != "pokemon" {
		t.Errorf("error path = %v, want [pokemon]", got)
	}
	if string(res.Data) != `{"pokemon":null}` {
		t.Errorf("data = %s", res.Data)
	}
}

func TestGraphQL_ValidationError(t *testing.T) {
	up := newFakeUpstreams()
	e := newGateway(t, up, nil)

	status, res := postQuery(t, e, `{ pokemon(id: 1) { nickname } }`)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected validation errors")
	}
	if string(res.Data) != "null" {
		t.Errorf("data = %s, want null", res.Data)
	}
	if up.pokeHits.Load() != 0 {
		t.Error("invalid query reached the upstream")
	}
}

func TestGraphQL_GetWithQuery(t *testing.T) {
	e := newGateway(t, newFakeUpstreams(), nil)

	q := url.Values{}
	q.Set("query", `query Named($id: ID!) { pokemon(id: $id) { name } }`)
	q.Set("variables", `{"id": 1}`)
	q.Set("operationName", "Named")

	rec := serve(e, http.MethodGet, "/graphql?"+q.Encode(), "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"pokemon":{"name":"bulbasaur"}}}` {
		t.Errorf("body = %s", got)
	}
}

func TestGraphQL_ApplicationGraphQLBody(t *testing.T) {
	e := newGateway(t, newFakeUpstreams(), nil)

	rec := serve(e, http.MethodPost, "/graphql", "application/graphql; charset=utf-8", `{ pokemon(id: "1") { weight } }`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"pokemon":{"weight":69}}}` {
		t.Errorf("body = %s", got)
	}
}

func TestGraphQL_BadRequests(t *testing.T) {
	e := newGateway(t, newFakeUpstreams(), nil)

	tests := []struct {
		name        string
		target      string
		method      string
		contentType string
		body        string
	}{
		{"malformed JSON", "/graphql", http.MethodPost, echo.MIMEApplicationJSON, `{"query":`},
		{"empty body", "/graphql", http.MethodPost, echo.MIMEApplicationJSON, ""},
		{"missing query", "/graphql", http.MethodPost, echo.MIMEApplicationJSON, `{"variables":{}}`},
		{"trailing content", "/graphql", http.MethodPost, echo.MIMEApplicationJSON, `{"query":"{ pokemon(id: 1) { id } }"} junk`},
		{"two documents", "/graphql", http.MethodPost, echo.MIMEApplicationJSON, `{"query":"{ pokemon(id: 1) { id } }"}{"query":"x"}`},
		{"trailing GET variables", "/graphql?query=%7Bpokemon(id%3A1)%7Bname%7D%7D&variables=%7B%7D%20x", http.MethodGet, "", ""},
		{"blank GET query", "/graphql?query=%20", http.MethodGet, "", ""},
		{"bad GET variables", "/graphql?query=%7Bpokemon(id%3A1)%7Bname%7D%7D&variables=nope", http.MethodGet, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.method, tt.target, tt.contentType, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			var res gqlResult
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(res.Errors) != 1 {
				t.Errorf("errors = %+v, want one", res.Errors)
			}
			assertCORS(t, rec)
		})
	}
}

func TestGraphQL_Console(t *testing.T) {
	e := newGateway(t, newFakeUpstreams(), nil)

	rec := serve(e, http.MethodGet, "/graphql", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "samplePokeAPIquery") {
		t.Error("console is not pre-populated with the sample query")
	}
	assertCORS(t, rec)
}

func TestGraphQL_ConsoleDisabled(t *testing.T) {
	e := newGateway(t, newFakeUpstreams(), func(cfg *config.Config) {
		off := false
		cfg.GraphQL.Console = &off
	})

	rec := serve(e, http.MethodGet, "/graphql", "", "")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "Not Found" {
		t.Errorf("GET /graphql = %d %q, want the 404 contract", rec.Code, rec.Body.String())
	}

	status, res := postQuery(t, e, `{ pokemon(id: 1) { name } }`)
	if status != http.StatusOK || len(res.Errors) != 0 {
		t.Errorf("POST /graphql = %d %+v, want queries to keep working", status, res.Errors)
	}
}
