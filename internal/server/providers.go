package server

import (
	"net/http"

	"github.com/opencamphq/campd/internal/provider"
)

// knownProviderTypes is the fixed set reported by GET /api/providers.
var knownProviderTypes = []provider.Type{
	provider.TypeVectorStore,
	provider.TypeObjectStorage,
	provider.TypeMail,
}

// handleProviders handles GET /api/providers: registry availability
// introspection for operators and UI feature gating.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	resp := providersResponse{
		Available: []provider.Type{},
		Providers: make(map[provider.Type]bool, len(knownProviderTypes)),
	}
	for _, t := range knownProviderTypes {
		ok := s.providers.IsAvailable(r.Context(), t)
		resp.Providers[t] = ok
		if ok {
			resp.Available = append(resp.Available, t)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
