package fpp_client

const (
	// Local fppd instance on the show controller
	DefaultBaseURL = "http://127.0.0.1"

	// API Endpoints
	StatusEndpoint = "/api/fppd/status"
)
