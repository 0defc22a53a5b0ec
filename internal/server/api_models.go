package server

// startAnalysisRequest is the body of POST /api/analyses.
type startAnalysisRequest struct {
	URL string `json:"url"`
}
