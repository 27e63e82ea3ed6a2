// Package client is the audiopaper API client used by paperctl.
//
// Besides the plain request helpers it keeps track of launched tasks: every
// launch records a PendingHandle in a durable HandleStore, and a
// PollerRegistry polls each handle's status URL until the task completes,
// fails or disappears. Handles survive a client restart; Resume picks them
// up again. Streaming launches are consumed as an EventSequence folded by a
// StreamReducer.
package client
