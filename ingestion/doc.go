// Package ingestion turns an uploaded file into stored, embedded chunks.
//
// A Pipeline run moves one document through a fixed sequence of stages:
//
//	created → validating → extracting → chunking → embedding → storing → finalizing → completed
//
// Any stage error moves the run straight to failed and invokes the failure
// handler, which records the error on the ProcessingJob and, when the
// failure is final, on the Document. Stages never retry internally; whole
// runs are retried by the Runner, which stands in for the external
// scheduler and enforces soft and hard timeouts.
//
// Some stage failures are soft: OCR, chunking and the vector store degrade
// with a log entry instead of failing the run.
//
// Each run opens its own store and vector sessions and closes them on
// every exit path. The input file is removed after a successful run or a
// final failure, never between retries.
package ingestion
