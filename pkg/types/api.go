package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: not found
	Error string `json:"error" example:"not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ModelStatus describes the loaded model.
type ModelStatus struct {
	// Absolute path of the weights file.
	// example: /models/tinyllama.gguf
	Path string `json:"path" example:"/models/tinyllama.gguf"`
	// Model architecture.
	// example: llama
	Arch string `json:"arch" example:"llama"`
	// Backend serving the model.
	// example: llama
	Backend string `json:"backend" example:"llama"`
	// Size of the weights file in bytes.
	// example: 637699392
	FileSize int64 `json:"file_size" example:"637699392"`
	// Number of tensors in the weights file.
	// example: 201
	TensorCount int `json:"tensor_count" example:"201"`
	// Context window in tokens.
	// example: 2048
	ContextSize int `json:"context_size" example:"2048"`
}

// ConnectionStatus summarizes one open client connection.
type ConnectionStatus struct {
	// Connection id.
	// example: 8c4b2f0e-3d7a-4f43-9b5e-2a1c6a7d9e10
	ID string `json:"id"`
	// Remote address.
	// example: 127.0.0.1:53122
	Remote string `json:"remote" example:"127.0.0.1:53122"`
	// Accept time in unix seconds.
	// example: 1700000000
	SinceUnix int64 `json:"since_unix" example:"1700000000"`
	// Completed requests on this connection.
	// example: 3
	Requests int64 `json:"requests" example:"3"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Model ModelStatus `json:"model"`
	// Address the line protocol listener is bound to.
	// example: 0.0.0.0:3000
	ListenAddr string `json:"listen_addr" example:"0.0.0.0:3000"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Scheduler slots.
	// example: 1
	SchedulerWidth int `json:"scheduler_width" example:"1"`
	// Live scheduler tasks, including the listener.
	// example: 4
	SchedulerTasks int `json:"scheduler_tasks" example:"4"`
	// Connections accepted since start.
	// example: 42
	ConnectionsTotal uint64 `json:"connections_total" example:"42"`
	// Requests completed since start.
	// example: 120
	RequestsTotal int64 `json:"requests_total" example:"120"`
	// Open connections in accept order.
	Connections []ConnectionStatus `json:"connections"`
}
