// Package protocol defines the frames exchanged over a relay connection and
// the JSON control messages carried in text frames.
//
// Client text frames are decoded once into an Inbound value. Binary frames
// carry no schema and are never decoded.
package protocol
