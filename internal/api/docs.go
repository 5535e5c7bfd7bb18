package api

// docsHTML renders the OpenAPI document with Stoplight Elements. The strip in
// the top right links the pages huma does not describe: the SSE stream, the
// raw OpenAPI document and the Prometheus endpoint.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>tabtrace API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    .tt-links {
      position: fixed;
      top: 10px;
      right: 14px;
      z-index: 9999;
      display: flex;
      gap: 6px;
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      font-size: 11px;
    }
    .tt-links a {
      background: #0d1117;
      border: 1px solid #21262d;
      border-radius: 4px;
      color: #79c0ff;
      padding: 4px 10px;
      text-decoration: none;
    }
    .tt-links a:hover { border-color: #388bfd; }
  </style>
</head>
<body style="height: 100vh; margin: 0;">
  <div class="tt-links">
    <a href="/docs/events">Event Stream Docs</a>
    <a href="/openapi.json">openapi.json</a>
    <a href="/metrics">metrics</a>
  </div>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`
