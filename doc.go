// Package irc2me implements the server-side core of a multi-account IRC
// gateway: it maintains persistent IRC client connections on behalf of many
// accounts, normalizes the raw IRC wire protocol into a structured message
// stream, and fans that stream out to any number of subscribed frontend
// clients while tolerating network loss and server-side protocol edge
// cases.
//
// The relational store of accounts/identities/networks, the client-facing
// RPC surface, GUI clients, command-line entry points and logging sinks are
// external collaborators; see the supervisor subpackage for the interfaces
// this core expects of them.
package irc2me
