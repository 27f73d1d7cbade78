// Package supervisor reattaches components whose stream has dropped.
//
// The manager performs no retries of its own. A Supervisor scans a fixed
// set of sub-domains on an interval and, for any that is missing or whose
// connection is no longer open, removes the stale registration and adds a
// fresh component from its factory.
package supervisor
