// Package testutil provides builders for constructing external tasks and
// process definition XML in tests without repeating boilerplate.
package testutil
