package server

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// CORSOrigins is a comma separated list of allowed origins, or "*".
	// Empty disables the CORS middleware.
	CORSOrigins string
}
