// Package refund manages refund requests and the scheduler that re-drives
// failed ones against the payment gateway.
//
// A request is created after the refund policy admits it and starts in
// pending status. The scheduler claims due requests on each tick, calls the
// gateway, and classifies every failure through the gateway's error
// taxonomy: retryable failures increment the retry count and wait for the
// next tick, terminal rejections end the request permanently. A completed or
// rejected request is immutable.
package refund
