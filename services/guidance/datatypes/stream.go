// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreamEvent is one Server-Sent Event on the session stream.
//
// # Event Types
//
//   - status: progress message ("Computing birth chart...")
//   - token: one chunk of guidance text, in display order
//   - error: stream failed; the stream closes after this event
//   - done: stream finished; SessionId identifies the stored session
//
// # Integrity Chain
//
// Every event carries a SHA-256 hash of its content and the hash of the
// previous event, so a client can verify nothing was dropped or
// reordered in transit.
type StreamEvent struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Hash      string `json:"hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`

	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionId string `json:"session_id,omitempty"`
}
