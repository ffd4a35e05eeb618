// Package collector is the HTTP client for the network probe collector API.
//
// Errors are typed so callers can decide what is user-visible:
// *TransportError (no response), *ServerError (non-2xx) and
// *ApplicationError (success:false in a 200 reply). Numeric fields decode
// leniently; a missing or malformed number reads as 0.
package collector
