package sync

import (
	"eventsync/internal/domain/sync"
)

type fullSyncInput struct {
	Body sync.FullSyncRequest
}

type fullSyncOutput struct {
	Body sync.FullSyncResponse
}

type getStatusInput struct {
	Role string `query:"role" enum:"initiator,responder" default:"responder" doc:"Role of the node in the session"`
}

type getStatusOutput struct {
	Body StatusResponse
}

// StatusResponse итог последнего раунда и признак идущей сессии
type StatusResponse struct {
	Running bool          `json:"running"`
	Last    *sync.Summary `json:"last,omitempty"`
}
