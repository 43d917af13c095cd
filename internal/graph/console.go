package graph

import (
	"bytes"
	"fmt"
	"html/template"
)

var consoleTemplate = template.Must(template.New("console").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@3.8.3/graphiql.min.css" crossorigin="anonymous">
  <style>body { margin: 0; } #graphiql { height: 100dvh; }</style>
</head>
<body>
  <div id="graphiql">Loading…</div>
  <script src="https://unpkg.com/react@18.3.1/umd/react.production.min.js" crossorigin="anonymous"></script>
  <script src="https://unpkg.com/react-dom@18.3.1/umd/react-dom.production.min.js" crossorigin="anonymous"></script>
  <script src="https://unpkg.com/graphiql@3.8.3/graphiql.min.js" crossorigin="anonymous"></script>
  <script>
    const url = new URL({{.Endpoint}}, location.href).toString();
    const fetcher = GraphiQL.createFetcher({ url });
    ReactDOM.createRoot(document.getElementById('graphiql')).render(
      React.createElement(GraphiQL, { fetcher, defaultQuery: {{.DefaultQuery}} }),
    );
  </script>
</body>
</html>
`))

// RenderConsole renders the GraphiQL console page for endpoint, opened with
// query in the editor.
func RenderConsole(title, endpoint, query string) ([]byte, error) {
	var buf bytes.Buffer
	err := consoleTemplate.Execute(&buf, struct {
		Title        string
		Endpoint     string
		DefaultQuery string
	}{title, endpoint, query})
	if err != nil {
		return nil, fmt.Errorf("render console: %w", err)
	}
	return buf.Bytes(), nil
}
