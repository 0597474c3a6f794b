// Package ws streams live terminal sessions over WebSocket.
//
// One connection follows one session. Output goes out as binary frames
// carrying raw PTY bytes, starting with the unread scrollback; control
// traffic uses JSON text frames.
//
// Message Types (Client → Server):
//   - input: Data is written to the shell
//   - resize: Cols and Rows set the terminal size
//   - ping: Keep-alive ping
//
// A binary frame from the client is written to the shell as-is.
//
// Message Types (Server → Client):
//   - system: Connection established
//   - pong: Reply to ping
//   - exit: The session ended; the server closes the connection
//   - error: A request failed
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger, cfg.Server.AllowedOrigins...)
//	handler.Register(router)
package ws
