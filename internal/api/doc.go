// Package api contains the HTTP handlers, request/response models and error
// mapping for the song identification service. Handlers delegate all
// business logic to the service layer and translate its results and errors
// into JSON responses.
package api
