// Package session owns the lifecycle of one techread connection: the
// authenticated control channel, the data channel bound to the same server
// and the at-most-one in-flight drawing read.
package session
