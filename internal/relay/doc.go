// Package relay pairs browser connections and forwards frames between them.
//
// Every connection runs as a Session: four duties (writer, pinger, forwarder
// and reader) that stop together as soon as any one of them exits. Sessions
// address each other only through the connection registry; a session never
// touches another session's state directly.
package relay
