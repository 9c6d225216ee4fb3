package dto

type BulkDeleteSubmissionsRequest struct {
	IDs []uint `json:"ids"`
}

type SubmissionColumnsResponse struct {
	Keys     []string `json:"keys"`
	Priority []string `json:"priority"`
}
