/*
Package http provides the REST API for vibeterm.

Live sessions are driven through /sessions: start a shell, write input,
poll output, resize and end it. Output reads consume what they return;
a client that wants a push stream uses the WebSocket endpoint instead.

Recorded sessions are served from /history when persistence is enabled,
including downloads in JSON, zstd or gzip form:

	GET /history/sessions/:id/export?format=zstd

Errors are JSON objects with "success": false and an "error" message.
Unknown session ids map to 404, closed sessions to 409 and a full host
to 429.
*/
package http
