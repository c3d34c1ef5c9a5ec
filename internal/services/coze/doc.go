// Package coze wraps the remote workflow-execution API: asynchronous run
// submission and run-history polling. The client is stateless beyond its
// auth token and is safe for concurrent use.
package coze
