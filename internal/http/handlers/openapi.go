package handlers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"
)

//go:embed openapi.json
var openAPISpec []byte

// openAPIVersion is read from the embedded document so a malformed file
// fails at startup rather than in a browser.
var openAPIVersion = func() string {
	var doc struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := json.Unmarshal(openAPISpec, &doc); err != nil {
		panic("handlers: embedded openapi.json: " + err.Error())
	}
	return doc.Info.Version
}()

var builtAt = time.Now()

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body style="margin:0">
<redoc spec-url="{{.SpecURL}}"></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
</body>
</html>`))

// OpenAPIJSON serves the embedded API description. Conditional requests are
// answered by http.ServeContent.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-API-Version", openAPIVersion)
	http.ServeContent(w, r, "openapi.json", builtAt, bytes.NewReader(openAPISpec))
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := docsPage.Execute(w, map[string]string{
		"Title":   "specledger API " + openAPIVersion,
		"SpecURL": "/v1/openapi.json",
	})
	if err != nil {
		a.log(r).Error().Err(err).Msg("render api docs")
	}
}
