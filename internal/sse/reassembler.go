// Package sse implements the streaming half of the proxy: reassembling the
// upstream server-sent-event byte stream into discrete payloads, and emitting
// OpenAI-compatible chunks from them.
package sse

import "regexp"

// Upstream events are "data: <payload>" lines closed by a blank line; network
// reads are not aligned to event boundaries.
var eventLineRe = regexp.MustCompile(`^data: (.*)(?:\n\n|\r\r|\r\n\r\n)`)

// Reassembler accumulates raw stream fragments and yields complete event
// payloads. One instance per streaming response, never reused.
type Reassembler struct {
	buffer string
}

func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends a fragment and returns every payload completed by it, in
// arrival order.
func (r *Reassembler) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	r.buffer += chunk

	var payloads []string
	for {
		match := eventLineRe.FindStringSubmatch(r.buffer)
		if match == nil {
			break
		}
		payloads = append(payloads, match[1])
		r.buffer = r.buffer[len(match[0]):]
	}
	return payloads
}

// Flush returns whatever is left in the buffer at stream end. A non-empty
// residue means the upstream never terminated its last event; callers emit it
// anyway and let JSON parsing decide.
func (r *Reassembler) Flush() (string, bool) {
	if r.buffer == "" {
		return "", false
	}
	residue := r.buffer
	r.buffer = ""
	return residue, true
}
