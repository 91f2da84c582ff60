// Package feed implements the quote feed Connection Manager.
//
// The Manager:
//   - Connects to scheme://host?<token param>=<access token>
//   - Forwards every text frame to the message hook, except keepalive frames
//     (any text containing "ping")
//   - Reconnects after a fixed 3s delay on disconnect, transport error or a
//     reconnect suggestion, with at most one reconnect pending at a time
//   - Stops reconnecting after an explicit Disconnect until the next Connect
//
// Subscriptions are not buffered across reconnects: consumers re-send them
// from the connected hook, which fires again after every successful connect.
package feed
