// Package recovery fails documents and jobs abandoned in the processing state.
//
// A pipeline run that is killed by a hard timeout or a crashed worker never
// reaches its failure handler, so its document stays in processing forever.
// The Sweeper finds such documents by upload age and fails them, along with
// any processing job still marked running.
package recovery
