// Package gateway is the client of the hosted text-to-speech function.
//
// The client never retries on an HTTP status: a 402 means the owner's quota
// is exhausted and a 429 is left for the caller to retry later. Only
// transport failures (refused or reset connections) are retried.
package gateway
