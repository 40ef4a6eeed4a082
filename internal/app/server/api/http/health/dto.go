package health

// Input represents the input for health check endpoint
type Input struct{}

// Output represents the output for health check endpoint
type Output struct {
	Body Response
}

// Response represents the health check response
type Response struct {
	Status string `json:"status" example:"OK" doc:"Health status of the service"`
	Node   string `json:"node" example:"central" doc:"Node name"`
	Driver string `json:"driver" example:"postgres" doc:"Storage driver of the node"`
}
