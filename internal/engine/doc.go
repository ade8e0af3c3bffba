// Package engine assembles the synchronization pipeline behind a single
// facade. It wires the HTTP transport, the local history cache, the
// conversation manager, the message synchronizer, the feedback recorder,
// and the optional offline archive from one configuration.
//
// Frontends talk only to Engine. The failure posture is inherited from the
// components: conversation and message persistence degrade to local-only
// operation when the server is unreachable, and feedback is submitted in the
// background.
package engine
