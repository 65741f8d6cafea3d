// Package webchat serves the browser chat widget.
//
// Every websocket connection on /ws mounts its own conversation store and
// discards it when the connection goes away. The browser sends submit
// frames and receives a snapshot frame after every store mutation; the
// page renders nothing but the latest snapshot.
package webchat
